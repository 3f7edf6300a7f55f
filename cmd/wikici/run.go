// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wiki-ci/wiki-ci/internal/config"
	"github.com/wiki-ci/wiki-ci/internal/container"
	"github.com/wiki-ci/wiki-ci/internal/issue"
	"github.com/wiki-ci/wiki-ci/internal/pipeline"
	"github.com/wiki-ci/wiki-ci/internal/runner"
	"github.com/wiki-ci/wiki-ci/internal/stages"
)

// runPipeline is the root command body.
func runPipeline(cmd *cobra.Command, flags *rootFlags, provider config.Provider, args []string) error {
	ctx := cmd.Context()
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if flags.list {
		pipeline.NewDriver(stages.All(stages.Config{}), pipeline.Options{Out: stdout}).List()
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("failed to get working directory: %w", err)}
	}

	cfg, err := provider.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configFile, Dir: cwd})
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if err := applyFlags(cmd.Flags(), flags, cfg); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	logger := newLogger(stderr, cfg.UI.Verbose)
	logger.Debug("configuration loaded", "run_id", cfg.RunID, "runner", cfg.Runner, "engine", cfg.ContainerEngine)

	rc := &runner.RunContext{
		ID:         cfg.RunID,
		Cwd:        cwd,
		HostCwd:    cfg.HostCwd,
		ResultsDir: absPath(cwd, cfg.ResultsDir),
		Verbose:    cfg.UI.Verbose,
		Headed:     cfg.UI.Headed,
	}

	r, err := newRunner(cfg, rc, runner.Options{
		Stdout:          stdout,
		Stderr:          stderr,
		Logger:          logger,
		User:            cfg.Container.User,
		ImageRepository: cfg.Container.ImageRepository,
		DatabaseImage:   cfg.Container.DatabaseImage,
		ReleaseGrace:    cfg.Release.Grace,
	})
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	driver := pipeline.NewDriver(stages.All(stages.Config{
		Browsers:   cfg.E2E.Browsers,
		Expiration: cfg.E2E.Expiration,
		Readiness:  cfg.ReadinessPolicy(),
		Logger:     logger,
	}), pipeline.Options{
		Group:      cfg.UI.Group,
		FailFast:   cfg.UI.FailFast,
		ResultsDir: rc.ResultsDir,
		Out:        stdout,
		Logger:     logger,
		Verbose:    cfg.UI.Verbose,
	})

	result, err := driver.Run(ctx, rc, r, args, flags.all)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	fmt.Fprintln(stdout, renderSummary(*result))
	if code := result.ExitCode(); code != 0 {
		return &ExitError{Code: code, Err: fmt.Errorf("%d of %d stages failed", result.Failed, result.Ran())}
	}
	return nil
}

// applyFlags overrides configuration values with flags set on the command line.
func applyFlags(fs *pflag.FlagSet, flags *rootFlags, cfg *config.Config) error {
	if fs.Changed("group") {
		cfg.UI.Group = flags.group
	}
	if fs.Changed("verbose") {
		cfg.UI.Verbose = flags.verbose
	}
	if fs.Changed("fail-fast") {
		cfg.UI.FailFast = flags.failFast
	}
	if fs.Changed("headed") {
		cfg.UI.Headed = flags.headed
	}
	if fs.Changed("runner") {
		cfg.Runner = runner.Backend(flags.runner)
	}
	if fs.Changed("engine") {
		cfg.ContainerEngine = container.EngineType(flags.engine)
	}
	return cfg.Validate()
}

// newRunner creates the configured backend. The container engine is only
// detected when the container backend is selected.
func newRunner(cfg *config.Config, rc *runner.RunContext, opts runner.Options) (runner.Runner, error) {
	if cfg.Runner == runner.BackendContainer {
		engine, err := container.NewEngine(cfg.ContainerEngine)
		if err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("detect container engine").
				WithResource(string(cfg.ContainerEngine)).
				WithSuggestion("Install and start Docker or Podman").
				WithSuggestion("Or run on the host with --runner bare").
				Wrap(err).
				BuildError()
		}
		opts.Logger.Debug("using container engine", "engine", engine.Name())
		opts.Engine = engine
	}
	return runner.New(cfg.Runner, rc, opts)
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: config.AppName})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func absPath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
