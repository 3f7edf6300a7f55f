// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"

	"github.com/wiki-ci/wiki-ci/internal/container"
)

// loopback is the address of every bare-backend server.
const loopback = "127.0.0.1"

// requiredBinaries are checked on PATH by ShellRunner.Build.
var requiredBinaries = map[ExecContext][]string{
	Build:    {"kill", "pgrep", "cargo", "node", "npm"},
	E2E:      {"npx"},
	Database: {"initdb", "pg_ctl"},
}

type (
	// ShellRunner runs commands directly on the host with sh. The Database
	// context bootstraps a throwaway PostgreSQL cluster in the working tree.
	ShellRunner struct {
		rc       *RunContext
		opts     Options
		trace    tracer
		command  container.ExecCommandFunc
		lookPath func(string) (string, error)

		// jobID numbers database clusters within this runner. Only
		// startDatabase touches it; stages run one at a time.
		jobID int
	}

	// processServer is a background sh process.
	processServer struct {
		releaseOnce
		cmd     *exec.Cmd
		done    chan struct{}
		waitErr error
		stdout  bytes.Buffer
		stderr  bytes.Buffer
	}

	// databaseServer is a pg_ctl-managed cluster.
	databaseServer struct {
		releaseOnce
		dataDir string
		logFile string
	}

	// ShellOption configures a ShellRunner.
	ShellOption func(*ShellRunner)
)

// WithShellExec replaces process creation, for tests.
func WithShellExec(fn container.ExecCommandFunc) ShellOption {
	return func(r *ShellRunner) { r.command = fn }
}

// WithLookPath replaces the PATH lookup used by Build, for tests.
func WithLookPath(fn func(string) (string, error)) ShellOption {
	return func(r *ShellRunner) { r.lookPath = fn }
}

// NewShellRunner creates a bare backend.
func NewShellRunner(rc *RunContext, opts Options, options ...ShellOption) *ShellRunner {
	opts = opts.withDefaults()
	r := &ShellRunner{
		rc:       rc,
		opts:     opts,
		trace:    tracer{out: opts.Stdout, enabled: rc.Verbose},
		command:  exec.CommandContext,
		lookPath: exec.LookPath,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Build checks that the context's binaries are on PATH. For Build and E2E
// it then installs the UI's npm dependencies.
func (r *ShellRunner) Build(ctx context.Context, ec ExecContext) error {
	var missing []string
	for _, bin := range requiredBinaries[ec] {
		if _, err := r.lookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return preconditionError("%s context: required binaries not found on PATH: %s",
			ec, strings.Join(missing, ", "))
	}

	if ec == Database {
		return nil
	}
	return r.runForeground(ctx, filepath.Join(r.rc.Cwd, "ui"), nil, "npm", "install")
}

// Run executes cmd.Script with sh in the working tree.
func (r *ShellRunner) Run(ctx context.Context, ec ExecContext, cmd Command) error {
	if ec == Database {
		return preconditionError("cannot run database in foreground")
	}
	if err := checkScript(cmd.Script); err != nil {
		return err
	}
	return r.runForeground(ctx, r.rc.Cwd, cmd.Env, "sh", "-c", cmd.Script)
}

// RunBackground starts cmd.Script with sh, or a PostgreSQL cluster for the
// Database context.
func (r *ShellRunner) RunBackground(ctx context.Context, ec ExecContext, cmd Command) (BackgroundServer, error) {
	if ec == Database {
		return r.startDatabase(ctx, cmd.Env)
	}
	if err := checkScript(cmd.Script); err != nil {
		return nil, err
	}
	return r.startProcess(ctx, cmd)
}

// checkScript parses script so syntax errors surface before anything runs.
func checkScript(script string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), "script"); err != nil {
		return preconditionError("script syntax error: %v", err)
	}
	return nil
}

func (r *ShellRunner) runForeground(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := r.command(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = r.opts.Stdout
	cmd.Stderr = r.opts.Stderr

	done := r.trace.start(name, args, false)
	defer done()
	return exitError(name, cmd.Run())
}

func (r *ShellRunner) startProcess(ctx context.Context, c Command) (BackgroundServer, error) {
	args := []string{"-c", c.Script}
	cmd := r.command(ctx, "sh", args...)
	cmd.Dir = r.rc.Cwd
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setProcessGroup(cmd)
	// Cancellation must reach everything the script started, not only sh.
	cmd.Cancel = func() error { return interruptGroup(cmd.Process.Pid) }
	cmd.WaitDelay = r.opts.ReleaseGrace

	srv := &processServer{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &srv.stdout
	cmd.Stderr = &srv.stderr

	done := r.trace.start("sh", args, true)
	if err := cmd.Start(); err != nil {
		done()
		return nil, exitError("sh", err)
	}

	go func() {
		srv.waitErr = cmd.Wait()
		close(srv.done)
	}()

	srv.fn = func() error {
		defer done()
		return r.stopProcess(srv)
	}
	return srv, nil
}

// stopProcess interrupts the children of the process (the shell itself when
// it has none) and waits up to the grace period. The process group is
// killed afterwards in every case: processes the script backgrounded
// outlive sh and are no longer its children. The captured output is
// printed last.
func (r *ShellRunner) stopProcess(srv *processServer) error {
	pid := srv.cmd.Process.Pid

	var errs []error
	targets, err := r.childPIDs(pid)
	if err != nil {
		errs = append(errs, err)
	}
	if len(targets) == 0 {
		targets = []int{pid}
	}

	select {
	case <-srv.done:
	default:
		for _, p := range targets {
			if err := interrupt(p); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, fmt.Errorf("interrupt %d: %w", p, err))
			}
		}

		timer := time.NewTimer(r.opts.ReleaseGrace)
		select {
		case <-srv.done:
			timer.Stop()
		case <-timer.C:
			r.opts.Logger.Warn("background process ignored SIGINT, killing group", "pid", pid)
		}
	}

	if err := killGroup(pid); err != nil {
		errs = append(errs, fmt.Errorf("kill process group %d: %w", pid, err))
	}
	<-srv.done

	if srv.waitErr != nil {
		r.opts.Logger.Debug("background process exited", "pid", pid, "error", srv.waitErr)
	}
	_, _ = r.opts.Stderr.Write(srv.stderr.Bytes())
	_, _ = r.opts.Stdout.Write(srv.stdout.Bytes())

	return errors.Join(errs...)
}

// childPIDs lists the direct children of pid with pgrep -P. pgrep exits 1
// when nothing matches.
func (r *ShellRunner) childPIDs(pid int) ([]int, error) {
	out, err := r.command(context.Background(), "pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("list children of %d: %w", pid, err)
	}

	var pids []int
	for field := range strings.FieldsSeq(string(out)) {
		if p, err := strconv.Atoi(field); err == nil {
			pids = append(pids, p)
		}
	}
	return pids, nil
}

// nextDatabaseName returns pg_<run id>_<n>, unique within this runner.
func (r *ShellRunner) nextDatabaseName() string {
	name := fmt.Sprintf("pg_%s_%d", r.rc.ID, r.jobID)
	r.jobID++
	return name
}

func (r *ShellRunner) startDatabase(ctx context.Context, env []string) (BackgroundServer, error) {
	name := r.nextDatabaseName()
	srv := &databaseServer{
		dataDir: filepath.Join(r.rc.Cwd, name+"_dir"),
		logFile: filepath.Join(r.rc.Cwd, name+".log"),
	}

	if err := r.runForeground(ctx, r.rc.Cwd, env,
		"initdb", "-A", "trust", "-D", srv.dataDir, "-U", "postgres"); err != nil {
		return nil, errors.Join(err, srv.removeFiles())
	}
	if err := r.runForeground(ctx, r.rc.Cwd, env,
		"pg_ctl", "-D", srv.dataDir, "-l", srv.logFile, "start"); err != nil {
		return nil, errors.Join(err, srv.removeFiles())
	}

	srv.fn = func() error {
		err := r.runForeground(context.Background(), r.rc.Cwd, nil, "pg_ctl", "-D", srv.dataDir, "stop")
		return errors.Join(err, srv.removeFiles())
	}
	return srv, nil
}

// Address returns the loopback address.
func (s *processServer) Address(context.Context) (string, error) { return loopback, nil }

// Address returns the loopback address.
func (s *databaseServer) Address(context.Context) (string, error) { return loopback, nil }

func (s *databaseServer) removeFiles() error {
	var errs []error
	if err := os.RemoveAll(s.dataDir); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(s.logFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
