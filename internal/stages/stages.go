// SPDX-License-Identifier: MPL-2.0

package stages

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/wiki-ci/wiki-ci/internal/pipeline"
	"github.com/wiki-ci/wiki-ci/internal/runner"
)

const (
	// AppPort is where the wiki and the UI dev server listen.
	AppPort = "8080"

	// DefaultExpiration is the user and API token lifetime, in seconds,
	// used by the e2e runs. Short enough to exercise refresh paths.
	DefaultExpiration = 1000

	// nodeModulesLink exposes the dependencies installed in the build image
	// to the mounted working tree. It fails harmlessly on bare hosts.
	nodeModulesLink = "ln -s /ci/ui/node_modules ./ui/node_modules || true"
)

// DefaultBrowsers are the Cypress browsers for the compiled-binary e2e run.
var DefaultBrowsers = []string{"firefox", "chrome"}

// Config parameterizes the stages.
type Config struct {
	Browsers   []string
	Expiration int
	Readiness  runner.Readiness
	Logger     *log.Logger

	// DatabaseProbe and AppProbe check a started service's address.
	// They default to runner.PostgresProbe and a TCP probe of AppPort.
	DatabaseProbe func(addr string) runner.Probe
	AppProbe      func(addr string) runner.Probe
}

// All returns the stages in registration order.
func All(cfg Config) []pipeline.Stage {
	cfg = cfg.withDefaults()
	return []pipeline.Stage{
		{Name: "Prepare_Contexts", Run: PrepareContexts},
		{Name: "Rust_Checks", Run: cfg.RustChecks},
		{Name: "NodeJS_Checks", Run: NodeJSChecks},
		{Name: "Dev_E2E", Run: cfg.DevE2E},
	}
}

func (c Config) withDefaults() Config {
	if len(c.Browsers) == 0 {
		c.Browsers = DefaultBrowsers
	}
	if c.Expiration <= 0 {
		c.Expiration = DefaultExpiration
	}
	if c.Readiness.Attempts <= 0 {
		c.Readiness = runner.DefaultReadiness
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
	if c.DatabaseProbe == nil {
		c.DatabaseProbe = runner.PostgresProbe
	}
	if c.AppProbe == nil {
		c.AppProbe = func(addr string) runner.Probe { return runner.TCPProbe(addr, AppPort) }
	}
	return c
}

// resultsPath returns the results directory relative to dir, the way a
// script running in dir must refer to it.
func resultsPath(rc *runner.RunContext, dir string) string {
	results := rc.ResultsDir
	if results == "" {
		results = filepath.Join(rc.Cwd, "test_results")
	}
	rel, err := filepath.Rel(dir, results)
	if err != nil {
		return results
	}
	return filepath.ToSlash(rel)
}

// workDir is the working tree as scripts see it.
func workDir(rc *runner.RunContext) string {
	if rc.Cwd != "" {
		return rc.Cwd
	}
	wd, _ := os.Getwd()
	return wd
}
