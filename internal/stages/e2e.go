// SPDX-License-Identifier: MPL-2.0

package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wiki-ci/wiki-ci/internal/runner"
)

// cypressResults is where Cypress writes JUnit reports, relative to ui/.
const cypressResults = "cypress/results"

// DevE2E runs the Cypress suite against the UI dev server, then against the
// compiled wiki binary once per browser. Each browser gets its own database
// and server.
func (c Config) DevE2E(ctx context.Context, rc *runner.RunContext, r runner.Runner) error {
	if err := c.nodeDevE2E(ctx, rc, r); err != nil {
		return fmt.Errorf("node dev server: %w", err)
	}

	if err := r.Run(ctx, runner.Build, runner.Command{
		IncludeSource: true,
		Script: fmt.Sprintf(`set -xe
%s
cd ui
npm run build -- --build dev --user-expiration %[2]d --api-expiration %[2]d
cd ..
cargo build --bin wiki`, nodeModulesLink, c.Expiration),
	}); err != nil {
		return fmt.Errorf("build wiki: %w", err)
	}

	for _, browser := range c.Browsers {
		if err := c.rustDevE2E(ctx, rc, r, browser); err != nil {
			return fmt.Errorf("wiki binary on %s: %w", browser, err)
		}
	}
	return nil
}

func (c Config) nodeDevE2E(ctx context.Context, rc *runner.RunContext, r runner.Runner) error {
	scope := runner.NewScope(c.Logger)
	defer scope.Close()

	app, err := c.startApp(ctx, scope, r, fmt.Sprintf(`set -xe
%s
cd ui
npm run dev -- --user-expiration %[2]d --api-expiration %[2]d`, nodeModulesLink, c.Expiration))
	if err != nil {
		return err
	}

	return c.cypress(ctx, rc, r, app, "node", "")
}

func (c Config) rustDevE2E(ctx context.Context, rc *runner.RunContext, r runner.Runner, browser string) error {
	scope := runner.NewScope(c.Logger)
	defer scope.Close()

	db, err := startDatabase(ctx, c, scope, r)
	if err != nil {
		return err
	}

	app, err := c.startApp(ctx, scope, r, "set -xe\n./target/debug/wiki --postgres-host "+db)
	if err != nil {
		return err
	}

	return c.cypress(ctx, rc, r, app, "rust", browser)
}

// startApp starts script in the build context and waits for the port.
func (c Config) startApp(ctx context.Context, scope *runner.Scope, r runner.Runner, script string) (string, error) {
	app, err := scope.Start(ctx, r, runner.Build, runner.Command{IncludeSource: true, Script: script})
	if err != nil {
		return "", fmt.Errorf("start server: %w", err)
	}
	addr, err := app.Address(ctx)
	if err != nil {
		return "", fmt.Errorf("server address: %w", err)
	}
	if err := c.Readiness.Wait(ctx, "server", c.AppProbe(addr)); err != nil {
		return "", err
	}
	return addr, nil
}

// cypress runs the suite against addr and moves its reports into the
// results directory. An empty browser leaves the choice to Cypress.
func (c Config) cypress(ctx context.Context, rc *runner.RunContext, r runner.Runner, addr, variant, browser string) error {
	baseURL := "http://" + addr + ":" + AppPort
	expiration := strconv.Itoa(c.Expiration)

	label := variant
	if browser != "" {
		label += "-" + browser
	}

	args := []string{"npx", "cypress", "run", "--config", "baseUrl=" + baseURL}
	if browser != "" {
		args = append(args, "--browser", browser)
	}
	if rc.Headed {
		args = append(args, "--headed")
	}

	runErr := r.Run(ctx, runner.E2E, runner.Command{
		Env: []string{
			"CYPRESS_USER_EXPIRATION=" + expiration,
			"CYPRESS_API_EXPIRATION=" + expiration,
			"CYPRESS_API_BASE_URL=" + baseURL,
			"CYPRESS_REQUIRE_CLEAN_PERSISTENCE=true",
			"CYPRESS_MOCHA_FILE=" + cypressResults + "/e2e-" + label + "-[hash].xml",
		},
		IncludeSource: true,
		Script:        fmt.Sprintf("set -xe\n%s\ncd ui\n%s", nodeModulesLink, strings.Join(args, " ")),
	})

	// Reports of a failed run are the interesting ones.
	return errors.Join(runErr, relocateReports(rc))
}

// relocateReports moves Cypress reports from ui/cypress/results into the
// results directory.
func relocateReports(rc *runner.RunContext) error {
	src := filepath.Join(workDir(rc), "ui", filepath.FromSlash(cypressResults))
	dst := rc.ResultsDir
	if dst == "" {
		dst = filepath.Join(workDir(rc), "test_results")
	}

	entries, err := os.ReadDir(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reports: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".xml" {
			continue
		}
		if err := os.Rename(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			errs = append(errs, fmt.Errorf("relocate report: %w", err))
		}
	}
	return errors.Join(errs...)
}
