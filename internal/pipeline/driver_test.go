// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/wiki-ci/wiki-ci/internal/runner"
)

// recorder builds stages that log their execution order.
type recorder struct {
	ran []string
}

func (rec *recorder) stage(name string, err error) Stage {
	return Stage{
		Name: name,
		Run: func(context.Context, *runner.RunContext, runner.Runner) error {
			rec.ran = append(rec.ran, name)
			return err
		},
	}
}

func newTestDriver(t *testing.T, stages []Stage, opts Options) (*Driver, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.Out = &out
	opts.Logger = log.New(io.Discard)
	if opts.ResultsDir == "" {
		opts.ResultsDir = filepath.Join(t.TempDir(), "test_results")
	}
	return NewDriver(stages, opts), &out
}

func TestDriver_Scenarios(t *testing.T) {
	t.Parallel()

	errB := errors.New("B failed")

	tests := []struct {
		name     string
		failFast bool
		wantRan  []string
		want     Result
		summary  string
		exitCode int
	}{
		{
			name:     "fail-fast off runs everything",
			wantRan:  []string{"A", "B", "C"},
			want:     Result{Passed: 2, Failed: 1, Total: 3},
			summary:  "2/3 passed (full fail)",
			exitCode: 1,
		},
		{
			name:     "fail-fast on stops after B",
			failFast: true,
			wantRan:  []string{"A", "B"},
			want:     Result{Passed: 1, Failed: 1, Total: 3},
			summary:  "1/2 passed (partial fail)",
			exitCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recorder{}
			stages := []Stage{rec.stage("A", nil), rec.stage("B", errB), rec.stage("C", nil)}
			d, _ := newTestDriver(t, stages, Options{FailFast: tt.failFast})

			got, err := d.Run(t.Context(), &runner.RunContext{}, nil, nil, true)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !slices.Equal(rec.ran, tt.wantRan) {
				t.Errorf("ran %v, want %v", rec.ran, tt.wantRan)
			}
			if *got != tt.want {
				t.Errorf("Result = %+v, want %+v", *got, tt.want)
			}
			if got.String() != tt.summary {
				t.Errorf("summary = %q, want %q", got.String(), tt.summary)
			}
			if got.ExitCode() != tt.exitCode {
				t.Errorf("ExitCode() = %d, want %d", got.ExitCode(), tt.exitCode)
			}
			if d.State() != StateCompleted {
				t.Errorf("State() = %s", d.State())
			}
		})
	}
}

func TestDriver_SelectionKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	stages := []Stage{rec.stage("A", nil), rec.stage("B", nil), rec.stage("C", nil), rec.stage("D", nil)}
	d, _ := newTestDriver(t, stages, Options{})

	got, err := d.Run(t.Context(), &runner.RunContext{}, nil, []string{"D", "B"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rec.ran, []string{"B", "D"}) {
		t.Errorf("ran %v, want [B D]", rec.ran)
	}
	if got.String() != "2/2 passed (full pass)" {
		t.Errorf("summary = %q", got.String())
	}
}

func TestDriver_NoMatchingStage(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d, _ := newTestDriver(t, []Stage{rec.stage("A", nil)}, Options{})

	got, err := d.Run(t.Context(), &runner.RunContext{}, nil, []string{"Nope"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.ran) != 0 || got.Ran() != 0 || got.Failed != 0 {
		t.Errorf("ran %v, result %+v", rec.ran, *got)
	}
	if got.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", got.ExitCode())
	}
	if got.String() != "0/0 passed (full pass)" {
		t.Errorf("summary = %q", got.String())
	}
}

func TestDriver_PartialPass(t *testing.T) {
	t.Parallel()

	r := Result{Passed: 1, Total: 2}
	if r.Classification() != "partial pass" || r.ExitCode() != 0 {
		t.Errorf("Classification() = %q ExitCode() = %d", r.Classification(), r.ExitCode())
	}
}

func TestDriver_List(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	results := filepath.Join(t.TempDir(), "test_results")
	d, out := newTestDriver(t, []Stage{rec.stage("Prepare_Contexts", nil), rec.stage("Dev_E2E", nil)},
		Options{ResultsDir: results})

	d.List()

	if out.String() != "Prepare_Contexts\nDev_E2E\n" {
		t.Errorf("List() = %q", out.String())
	}
	if len(rec.ran) != 0 {
		t.Errorf("List ran stages %v", rec.ran)
	}
	if _, err := os.Stat(results); !os.IsNotExist(err) {
		t.Error("List must not create the results directory")
	}
	if d.State() != StateNotStarted {
		t.Errorf("State() = %s", d.State())
	}
}

func TestDriver_GroupMarkers(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	stages := []Stage{rec.stage("A", errors.New("boom")), rec.stage("B", nil)}
	d, out := newTestDriver(t, stages, Options{Group: true, FailFast: true})

	if _, err := d.Run(t.Context(), &runner.RunContext{}, nil, nil, true); err != nil {
		t.Fatal(err)
	}
	if want := "::group::A\n::endgroup::\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestDriver_PanicIsStageFailure(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	stages := []Stage{
		{Name: "Boom", Run: func(context.Context, *runner.RunContext, runner.Runner) error { panic("oops") }},
		rec.stage("After", nil),
	}
	d, _ := newTestDriver(t, stages, Options{})

	got, err := d.Run(t.Context(), &runner.RunContext{}, nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Failed != 1 || got.Passed != 1 {
		t.Errorf("Result = %+v", *got)
	}
}

func TestDriver_ResultsDirRecreated(t *testing.T) {
	t.Parallel()

	results := filepath.Join(t.TempDir(), "test_results")
	if err := os.MkdirAll(results, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(results, "old.xml")
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	d, _ := newTestDriver(t, nil, Options{ResultsDir: results})
	if _, err := d.Run(t.Context(), &runner.RunContext{}, nil, nil, true); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale report survived")
	}
	if info, err := os.Stat(results); err != nil || !info.IsDir() {
		t.Errorf("results directory missing: %v", err)
	}
}

func TestDriver_ResultsDirFailureIsFatal(t *testing.T) {
	t.Parallel()

	// A regular file in the parent path makes MkdirAll fail.
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	d, _ := newTestDriver(t, []Stage{rec.stage("A", nil)}, Options{ResultsDir: filepath.Join(parent, "results")})

	got, err := d.Run(t.Context(), &runner.RunContext{}, nil, nil, true)
	if err == nil || !strings.Contains(err.Error(), "prepare results directory") {
		t.Fatalf("Run() error = %v, want setup error", err)
	}
	if got != nil || len(rec.ran) != 0 {
		t.Errorf("no stage may run after a setup failure, ran %v", rec.ran)
	}
}

func TestDriver_StopsWhenInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	rec := &recorder{}
	stages := []Stage{
		{Name: "A", Run: func(context.Context, *runner.RunContext, runner.Runner) error {
			cancel()
			return nil
		}},
		rec.stage("B", nil),
	}
	d, _ := newTestDriver(t, stages, Options{})

	got, err := d.Run(ctx, &runner.RunContext{}, nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.ran) != 0 || got.String() != "1/1 passed (partial pass)" {
		t.Errorf("ran %v, summary %q", rec.ran, got.String())
	}
}
