// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/log"

	"github.com/wiki-ci/wiki-ci/internal/issue"
	"github.com/wiki-ci/wiki-ci/internal/runner"
)

const (
	// StateNotStarted is the state of a new Driver.
	StateNotStarted State = iota
	// StateRunning means stages are executing.
	StateRunning
	// StateCompleted is terminal; Result holds the outcome.
	StateCompleted
)

type (
	// State is the lifecycle state of a Driver.
	State int

	// Options configure a Driver.
	Options struct {
		// Group wraps each stage in ::group::/::endgroup:: markers.
		Group bool
		// FailFast stops after the first failed stage.
		FailFast bool
		// ResultsDir is wiped and recreated before the first stage.
		ResultsDir string
		// Out receives group markers and the stage list.
		Out    io.Writer
		Logger *log.Logger
		// Verbose renders failures with their full error chain.
		Verbose bool
	}

	// Driver runs a fixed, ordered list of stages.
	Driver struct {
		stages []Stage
		opts   Options
		state  State
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// NewDriver creates a driver over the registered stages.
func NewDriver(stages []Stage, opts Options) *Driver {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "wiki-ci"})
	}
	return &Driver{stages: stages, opts: opts}
}

// State returns the driver's lifecycle state.
func (d *Driver) State() State { return d.state }

// List prints every registered stage name, one per line, in order.
func (d *Driver) List() {
	for _, s := range d.stages {
		fmt.Fprintln(d.opts.Out, s.Name)
	}
}

// Run executes the selected stages in registration order. Stage failures are
// recorded in the Result; the returned error is reserved for setup failures,
// in which case no stage has run.
func (d *Driver) Run(ctx context.Context, rc *runner.RunContext, r runner.Runner, names []string, all bool) (*Result, error) {
	selected := Select(d.stages, names, all)
	result := &Result{Total: len(selected)}

	if err := PrepareResultsDir(d.opts.ResultsDir); err != nil {
		return nil, err
	}

	d.state = StateRunning
	defer func() { d.state = StateCompleted }()

	for _, stage := range selected {
		if ctx.Err() != nil {
			d.opts.Logger.Warn("interrupted, skipping remaining stages")
			break
		}

		d.groupStart(stage.Name)
		err := runStage(ctx, stage, rc, r)
		if err == nil {
			result.Passed++
			d.groupEnd()
			continue
		}

		result.Failed++
		d.opts.Logger.Error("stage failed", "stage", stage.Name, "error", issue.Render(err, d.opts.Verbose))
		d.groupEnd()
		if d.opts.FailFast {
			break
		}
	}

	return result, nil
}

func (d *Driver) groupStart(name string) {
	if d.opts.Group {
		fmt.Fprintf(d.opts.Out, "::group::%s\n", name)
		return
	}
	d.opts.Logger.Info("running stage", "stage", name)
}

func (d *Driver) groupEnd() {
	if d.opts.Group {
		fmt.Fprintln(d.opts.Out, "::endgroup::")
	}
}

// runStage converts a panicking stage into a failure. Deferred releases
// inside the stage have already run by the time recover sees the panic.
func runStage(ctx context.Context, stage Stage, rc *runner.RunContext, r runner.Runner) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return stage.Run(ctx, rc, r)
}

// PrepareResultsDir removes dir if it exists and creates it empty.
func PrepareResultsDir(dir string) error {
	if dir == "" {
		return nil
	}

	err := os.RemoveAll(dir)
	if err == nil {
		err = os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("prepare results directory").
			WithResource(dir).
			WithSuggestion("Check that the directory is writable and not held open by another process").
			Wrap(err).
			BuildError()
	}
	return nil
}
