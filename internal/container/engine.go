// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

// ErrEngineNotAvailable is the sentinel wrapped by EngineNotAvailableError.
var ErrEngineNotAvailable = errors.New("container engine not available")

type (
	// EngineType identifies the container engine.
	EngineType string

	// ContainerID is the ID printed by a detached "run".
	ContainerID string

	// Engine defines the container operations used by the CI runner.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// BinaryPath returns the resolved engine binary.
		BinaryPath() string
		// Available reports whether the engine responds on this host.
		Available() bool

		// BuildArgs renders the arguments of a build invocation.
		BuildArgs(opts BuildOptions) []string
		// RunArgs renders the arguments of a run invocation.
		RunArgs(opts RunOptions) []string

		// Build builds and tags an image.
		Build(ctx context.Context, opts BuildOptions) error
		// Pull fetches an external image.
		Pull(ctx context.Context, image string, stdout, stderr io.Writer) error
		// Run runs a container in the foreground until it exits.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// RunDetached starts a container in the background and returns its ID.
		RunDetached(ctx context.Context, opts RunOptions) (ContainerID, error)
		// InspectAddress returns the container's current IP address.
		InspectAddress(ctx context.Context, id ContainerID) (string, error)
		// Stop stops a running container.
		Stop(ctx context.Context, id ContainerID) error
		// Logs copies the container's output to the given writers.
		Logs(ctx context.Context, id ContainerID, stdout, stderr io.Writer) error
		// Remove removes a container.
		Remove(ctx context.Context, id ContainerID, force bool) error
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the path to the Dockerfile, relative to ContextDir unless absolute.
		Dockerfile string
		// Tag is the image tag.
		Tag string
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the build cache.
		NoCache bool
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run.
		Image string
		// Command overrides the image's default command when non-empty.
		Command []string
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env holds KEY=VALUE pairs in the order they are passed to -e.
		Env []string
		// Volumes are bind mounts in "host:container" format.
		Volumes []string
		// User is passed to -u when non-empty.
		User string
		// Name is the container name.
		Name string
		// Remove adds --rm.
		Remove bool
		// Detach adds -d.
		Detach bool
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunResult holds the outcome of a foreground run. A non-zero exit is
	// reported through ExitCode; Error is set only when the engine could
	// not be launched.
	RunResult struct {
		ContainerID ContainerID
		ExitCode    int
		// Signaled is true when the engine process was killed by a signal.
		Signaled bool
		Error    error
	}

	// EngineNotAvailableError is returned when no usable engine is found.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// String returns the engine type as a string.
func (t EngineType) String() string { return string(t) }

// Validate returns an error if the EngineType is not docker or podman.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman:
		return nil
	default:
		return fmt.Errorf("unknown container engine type: %q", string(t))
	}
}

// String returns the container ID.
func (id ContainerID) String() string { return string(id) }

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// NewEngine creates the preferred engine, falling back to the other one.
func NewEngine(preferred EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if err := preferred.Validate(); err != nil {
		return nil, err
	}

	candidates := []Engine{NewDockerEngine(opts...), NewPodmanEngine(opts...)}
	if preferred == EngineTypePodman {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}

	for _, e := range candidates {
		if e.Available() {
			return e, nil
		}
	}

	return nil, &EngineNotAvailableError{
		Engine: string(preferred),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available",
			candidates[0].Name(), candidates[1].Name()),
	}
}
