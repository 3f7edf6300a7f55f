// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/wiki-ci/wiki-ci/internal/config"
	"github.com/wiki-ci/wiki-ci/internal/stages"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the parsed command-line flags. Flags that were not set
// on the command line fall back to the configuration file.
type rootFlags struct {
	all        bool
	list       bool
	group      bool
	verbose    bool
	failFast   bool
	headed     bool
	runner     string
	engine     string
	configFile string
}

func newRootCommand() *cobra.Command {
	return newRootCommandWithProvider(config.FileProvider)
}

// newRootCommandWithProvider builds the root command around the given
// configuration source.
func newRootCommandWithProvider(provider config.Provider) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "wiki-ci [stage...]",
		Short: "Run the wiki CI pipeline",
		Long: TitleStyle.Render("wiki-ci") + SubtitleStyle.Render(" - CI pipeline for the wiki") + `

Runs the named stages, in pipeline order, inside containers or directly on
the host. Test reports are collected in the results directory, which is
recreated on every run.

` + SubtitleStyle.Render("Stages:") + `
` + stageHelp() + `

` + SubtitleStyle.Render("Examples:") + `
  wiki-ci --list                List the stages
  wiki-ci --all                 Run every stage
  wiki-ci Rust_Checks -g        Run one stage with CI log groups
  wiki-ci -a --runner bare      Run every stage on the host`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, flags, provider, args)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&flags.all, "all", "a", false, "run every stage")
	f.BoolVarP(&flags.list, "list", "l", false, "list the stages and exit")
	f.BoolVarP(&flags.group, "group", "g", false, "wrap each stage in ::group:: markers")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "echo every command and show full error chains")
	f.BoolVarP(&flags.failFast, "fail-fast", "f", false, "stop after the first failing stage")
	f.BoolVar(&flags.headed, "headed", false, "run browsers with a visible window")
	f.StringVar(&flags.runner, "runner", "", "runner backend: container or bare (default from config, else container)")
	f.StringVar(&flags.engine, "engine", "", "container engine: docker or podman (default from config, else docker)")
	f.StringVar(&flags.configFile, "config", "", "config file (default is ./wiki-ci.cue)")

	return cmd
}

func stageHelp() string {
	var sb strings.Builder
	for i, s := range stages.All(stages.Config{}) {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  " + StageStyle.Render(s.Name))
	}
	return sb.String()
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command and exits with its status.
// This is called by main.main().
func Execute() {
	os.Exit(run())
}

// run executes the root command and returns the process exit code.
func run() int {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}
