// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wiki-ci/wiki-ci/internal/container"
)

const (
	// Build is the compiler and package-manager toolchain.
	Build ExecContext = iota
	// E2E is the browser automation toolchain.
	E2E
	// Database is a disposable PostgreSQL server.
	Database
)

const (
	// BackendContainer runs every command inside a container.
	BackendContainer Backend = "container"
	// BackendBare runs every command directly on the host.
	BackendBare Backend = "bare"
)

// DefaultReleaseGrace is how long a released process may take to exit after
// SIGINT before its process group is killed.
const DefaultReleaseGrace = 10 * time.Second

type (
	// ExecContext selects the image or toolchain a command runs under.
	ExecContext int

	// Backend names a Runner implementation.
	Backend string

	// RunContext is the per-invocation configuration shared read-only by
	// every stage.
	RunContext struct {
		// ID identifies this run. It scopes image tags and database names.
		ID string
		// Cwd is the working tree on this machine.
		Cwd string
		// HostCwd is the working tree as seen by the container engine.
		// It differs from Cwd when wiki-ci itself runs inside a container.
		HostCwd string
		// ResultsDir is where test reports are collected.
		ResultsDir string
		Verbose    bool
		Headed     bool
	}

	// Command is one script invocation.
	Command struct {
		// Env holds KEY=VALUE pairs, applied in order.
		Env []string
		// IncludeSource mounts the working tree and runs the script inside it.
		IncludeSource bool
		// Script is shell text. It is ignored for the Database context.
		Script string
	}

	// Runner prepares execution contexts and runs commands in them.
	Runner interface {
		// Build prepares ec: builds an image, or checks host binaries.
		Build(ctx context.Context, ec ExecContext) error
		// Run executes cmd and waits for it. Success is exit code 0.
		Run(ctx context.Context, ec ExecContext, cmd Command) error
		// RunBackground launches cmd and returns once the launch is
		// confirmed. It does not wait for the service to be ready.
		RunBackground(ctx context.Context, ec ExecContext, cmd Command) (BackgroundServer, error)
	}

	// BackgroundServer owns one running resource.
	BackgroundServer interface {
		// Address returns the host or IP the service listens on.
		Address(ctx context.Context) (string, error)
		// Release stops the service and removes what it left behind.
		// Only the first call does any work; later calls return the
		// first call's error.
		Release() error
	}

	// Options configure both Runner backends.
	Options struct {
		// Stdout and Stderr receive command output and the verbose trace.
		Stdout io.Writer
		Stderr io.Writer
		Logger *log.Logger

		// Engine is required by the container backend.
		Engine container.Engine
		// User is passed to the engine as -u for non-database containers.
		User string
		// ImageRepository prefixes built image tags (<repo>:<context>-<id>).
		ImageRepository string
		// DatabaseImage is pulled and run for the Database context.
		DatabaseImage string

		// ReleaseGrace bounds how long the shell backend waits on a
		// released process.
		ReleaseGrace time.Duration
	}

	// releaseOnce runs fn the first time Release is called.
	releaseOnce struct {
		once sync.Once
		fn   func() error
		err  error
	}
)

var execContextNames = [...]string{
	Build:    "build",
	E2E:      "e2e",
	Database: "database",
}

// Contexts returns every execution context in declaration order.
func Contexts() []ExecContext {
	return []ExecContext{Build, E2E, Database}
}

// String returns the lower-case context name.
func (c ExecContext) String() string {
	if c < 0 || int(c) >= len(execContextNames) {
		return fmt.Sprintf("ExecContext(%d)", int(c))
	}
	return execContextNames[c]
}

// String returns the backend name.
func (b Backend) String() string { return string(b) }

// Validate returns an error if b is not a known backend.
func (b Backend) Validate() error {
	switch b {
	case BackendContainer, BackendBare:
		return nil
	default:
		return fmt.Errorf("unknown runner backend %q (valid: %s, %s)", string(b), BackendContainer, BackendBare)
	}
}

// New creates the Runner for backend.
func New(backend Backend, rc *RunContext, opts Options) (Runner, error) {
	if err := backend.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if backend == BackendBare {
		return NewShellRunner(rc, opts), nil
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("%s backend requires a container engine", backend)
	}
	return NewContainerRunner(rc, opts), nil
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(o.Stderr, log.Options{Prefix: "wiki-ci"})
	}
	if o.ImageRepository == "" {
		o.ImageRepository = "wiki-ci"
	}
	if o.DatabaseImage == "" {
		o.DatabaseImage = "postgres:16-alpine"
	}
	if o.ReleaseGrace <= 0 {
		o.ReleaseGrace = DefaultReleaseGrace
	}
	return o
}

// Release implements BackgroundServer.Release.
func (r *releaseOnce) Release() error {
	r.once.Do(func() {
		r.err = r.fn()
	})
	return r.err
}
