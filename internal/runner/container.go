// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wiki-ci/wiki-ci/internal/container"
)

const (
	// imageRetryAttempts bounds build and pull retries on transient engine errors.
	imageRetryAttempts = 3
	imageRetryBackoff  = 2 * time.Second
)

type (
	// ContainerRunner runs every execution context in its own image.
	// Build and E2E images are built from images/<context>.Dockerfile and
	// tagged <repository>:<context>-<run id>; Database runs the configured
	// PostgreSQL image.
	ContainerRunner struct {
		rc           *RunContext
		engine       container.Engine
		opts         Options
		trace        tracer
		retryBackoff time.Duration
	}

	// containerServer is a detached container.
	containerServer struct {
		releaseOnce
		engine container.Engine
		id     container.ContainerID
	}
)

// NewContainerRunner creates a container backend. opts.Engine must be set.
func NewContainerRunner(rc *RunContext, opts Options) *ContainerRunner {
	opts = opts.withDefaults()
	return &ContainerRunner{
		rc:           rc,
		engine:       opts.Engine,
		opts:         opts,
		trace:        tracer{out: opts.Stdout, enabled: rc.Verbose},
		retryBackoff: imageRetryBackoff,
	}
}

// ImageTag returns the image used for ec in this run.
func (r *ContainerRunner) ImageTag(ec ExecContext) string {
	if ec == Database {
		return r.opts.DatabaseImage
	}
	return fmt.Sprintf("%s:%s-%s", r.opts.ImageRepository, ec, r.rc.ID)
}

// Build builds the context's image, or pulls the database image.
// Transient engine failures are retried.
func (r *ContainerRunner) Build(ctx context.Context, ec ExecContext) error {
	if ec == Database {
		image := r.ImageTag(ec)
		done := r.trace.start(r.engine.Name(), []string{"pull", image}, false)
		defer done()
		return r.withRetry(ctx, "pull "+image, func() error {
			return r.engine.Pull(ctx, image, r.opts.Stdout, r.opts.Stderr)
		})
	}

	opts := container.BuildOptions{
		ContextDir: r.rc.Cwd,
		Dockerfile: filepath.Join("images", ec.String()+".Dockerfile"),
		Tag:        r.ImageTag(ec),
		Stdout:     r.opts.Stdout,
		Stderr:     r.opts.Stderr,
	}
	if r.opts.User != "" {
		opts.BuildArgs = map[string]string{"CI_USER": r.opts.User}
	}

	done := r.trace.start(r.engine.Name(), r.engine.BuildArgs(opts), false)
	defer done()
	return r.withRetry(ctx, "build "+opts.Tag, func() error {
		return r.engine.Build(ctx, opts)
	})
}

// Run runs cmd in a fresh container removed on exit.
func (r *ContainerRunner) Run(ctx context.Context, ec ExecContext, cmd Command) error {
	opts := r.runOptions(ec, cmd)
	opts.Remove = true

	done := r.trace.start(r.engine.Name(), r.engine.RunArgs(opts), false)
	defer done()

	result, err := r.engine.Run(ctx, opts)
	if err != nil {
		return &Error{Kind: KindLaunch, Command: opts.Image, Err: err}
	}
	if result.Error != nil {
		return &Error{Kind: KindLaunch, Command: opts.Image, Err: result.Error}
	}
	return codeError(opts.Image, result.ExitCode, result.Signaled)
}

// RunBackground starts cmd in a detached container. The container is kept
// after it stops so its logs can be collected on release.
func (r *ContainerRunner) RunBackground(ctx context.Context, ec ExecContext, cmd Command) (BackgroundServer, error) {
	opts := r.runOptions(ec, cmd)
	opts.Detach = true

	done := r.trace.start(r.engine.Name(), r.engine.RunArgs(opts), true)
	id, err := r.engine.RunDetached(ctx, opts)
	if err != nil {
		done()
		return nil, &Error{Kind: KindLaunch, Command: opts.Image, Err: err}
	}

	srv := &containerServer{engine: r.engine, id: id}
	srv.fn = func() error {
		defer done()
		return srv.teardown(r.opts)
	}
	return srv, nil
}

func (r *ContainerRunner) runOptions(ec ExecContext, cmd Command) container.RunOptions {
	opts := container.RunOptions{
		Image:  r.ImageTag(ec),
		Stdout: r.opts.Stdout,
		Stderr: r.opts.Stderr,
	}

	if ec == Database {
		opts.Env = append([]string{"POSTGRES_HOST_AUTH_METHOD=trust"}, cmd.Env...)
	} else {
		opts.Env = cmd.Env
		// The postgres image must start as root to drop to its own user.
		opts.User = r.opts.User
		if cmd.Script != "" {
			opts.Command = []string{"sh", "-c", cmd.Script}
		}
	}

	if cmd.IncludeSource {
		hostCwd := r.rc.HostCwd
		if hostCwd == "" {
			hostCwd = r.rc.Cwd
		}
		opts.Volumes = []string{hostCwd + ":" + hostCwd}
		opts.WorkDir = hostCwd
	}
	return opts
}

func (r *ContainerRunner) withRetry(ctx context.Context, what string, op func() error) error {
	err := container.RetryWithBackoff(ctx, imageRetryAttempts, r.retryBackoff, func(attempt int) (bool, error) {
		err := op()
		if err != nil && container.IsTransientError(err) {
			r.opts.Logger.Warn("transient engine error, retrying", "op", what, "attempt", attempt+1, "error", err)
			return true, err
		}
		return false, err
	})
	return exitError(what, err)
}

// Address inspects the container on every call.
func (s *containerServer) Address(ctx context.Context) (string, error) {
	return s.engine.InspectAddress(ctx, s.id)
}

// teardown stops the container, copies its logs, then removes it. Every
// step runs even when an earlier one fails.
func (s *containerServer) teardown(opts Options) error {
	ctx := context.Background()
	short := s.id.String()
	if len(short) > 12 {
		short = short[:12]
	}

	var errs []error
	if err := s.engine.Stop(ctx, s.id); err != nil {
		errs = append(errs, fmt.Errorf("stop %s: %w", short, err))
	}
	if err := s.engine.Logs(ctx, s.id, opts.Stdout, opts.Stderr); err != nil {
		errs = append(errs, fmt.Errorf("logs %s: %w", short, err))
	}
	if err := s.engine.Remove(ctx, s.id, true); err != nil {
		errs = append(errs, fmt.Errorf("remove %s: %w", short, err))
	}

	opts.Logger.Debug("released container", "id", short)
	return errors.Join(errs...)
}
