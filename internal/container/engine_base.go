// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wiki-ci/wiki-ci/internal/issue"
)

// addressFormat is the inspect template for a container's bridge IP.
const addressFormat = "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}"

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// Tests inject a helper-process implementation here.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc formats a "host:container" volume spec for -v.
	VolumeFormatFunc func(volume string) string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements every Engine operation that is identical
	// across CLI-based engines. DockerEngine and PodmanEngine embed it and
	// only provide Name and Available.
	BaseCLIEngine struct {
		name            string
		binaryPath      string
		execCommand     ExecCommandFunc
		volumeFormatter VolumeFormatFunc
	}
)

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the binary resolved by exec.LookPath.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// WithVolumeFormatter sets a custom volume formatter. Podman uses it to add
// SELinux labels.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.volumeFormatter = fn
	}
}

// NewBaseCLIEngine creates a base engine for the given binary.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:      binaryPath,
		execCommand:     exec.CommandContext,
		volumeFormatter: func(v string) string { return v },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BuildArgs constructs arguments for a build command.
//
// Generated command: <binary> build [-f file] [-t tag] [--no-cache] [--build-arg k=v]... <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfile := opts.Dockerfile
		if !filepath.IsAbs(dockerfile) && opts.ContextDir != "" {
			dockerfile = filepath.Join(opts.ContextDir, dockerfile)
		}
		args = append(args, "-f", dockerfile)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	// Sorted so the rendered command, and its hash, are stable.
	keys := make([]string, 0, len(opts.BuildArgs))
	for k := range opts.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	contextDir := opts.ContextDir
	if contextDir == "" {
		contextDir = "."
	}
	return append(args, contextDir)
}

// RunArgs constructs arguments for a run command.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Detach {
		args = append(args, "-d")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v))
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}

	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

// CreateCommand creates an exec.Cmd for the engine binary.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(e.binaryPath, args, err, stderr.String())
	}
	return nil
}

// RunCommandWithOutput executes a command and returns its stdout.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", commandError(e.binaryPath, args, err, stderr.String())
	}
	return stdout.String(), nil
}

// Build builds an image from a Dockerfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}
	return nil
}

// Pull fetches an image from its registry.
func (e *BaseCLIEngine) Pull(ctx context.Context, image string, stdout, stderr io.Writer) error {
	cmd := e.CreateCommand(ctx, "pull", image)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return issue.NewErrorContext().
			WithOperation("pull container image").
			WithResource(image).
			WithSuggestion("Check network access to the image registry").
			Wrap(err).
			BuildError()
	}
	return nil
}

// Run runs a container in the foreground.
// A non-zero exit code is captured in RunResult.ExitCode (not returned as error).
// Only launch failures (binary not found, etc.) set RunResult.Error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	opts.Detach = false

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Signaled = exitErr.ExitCode() == -1
		} else {
			result.ExitCode = 1
			result.Error = runContainerError(e.name, opts, err)
		}
	}
	return result, nil
}

// RunDetached starts a container with -d and returns the printed container ID.
func (e *BaseCLIEngine) RunDetached(ctx context.Context, opts RunOptions) (ContainerID, error) {
	opts.Detach = true
	opts.Remove = false

	out, err := e.RunCommandWithOutput(ctx, e.RunArgs(opts)...)
	if err != nil {
		return "", runContainerError(e.name, opts, err)
	}

	id := strings.TrimSpace(out)
	if id == "" {
		return "", runContainerError(e.name, opts, errors.New("engine printed no container id"))
	}
	return ContainerID(id), nil
}

// InspectAddress queries the container's IP address on every call.
func (e *BaseCLIEngine) InspectAddress(ctx context.Context, id ContainerID) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "inspect", "--format", addressFormat, string(id))
	if err != nil {
		return "", err
	}

	addr := strings.TrimSpace(out)
	if addr == "" {
		return "", fmt.Errorf("container %s has no network address", id)
	}
	return addr, nil
}

// Stop stops a running container.
func (e *BaseCLIEngine) Stop(ctx context.Context, id ContainerID) error {
	return e.RunCommandStatus(ctx, "stop", string(id))
}

// Logs copies a container's stdout and stderr to the given writers.
func (e *BaseCLIEngine) Logs(ctx context.Context, id ContainerID, stdout, stderr io.Writer) error {
	cmd := e.CreateCommand(ctx, "logs", string(id))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return commandError(e.binaryPath, []string{"logs", string(id)}, err, "")
	}
	return nil
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, id ContainerID, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return e.RunCommandStatus(ctx, append(args, string(id))...)
}

func commandError(binary string, args []string, err error, stderr string) error {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("command %s %v failed: %w: %s", binary, args, err, msg)
	}
	return fmt.Errorf("command %s %v failed: %w", binary, args, err)
}

// buildContainerError creates an actionable error for image build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().WithOperation("build container image")

	switch {
	case opts.Tag != "":
		ctx.WithResource(opts.Tag)
	case opts.Dockerfile != "":
		ctx.WithResource(opts.Dockerfile)
	}

	ctx.WithSuggestion("Check Dockerfile syntax for errors")
	ctx.WithSuggestion("Ensure base images are available (try: " + engine + " pull <base-image>)")
	ctx.WithSuggestion("Run with --verbose to see the full build command")

	return ctx.Wrap(cause).BuildError()
}

// runContainerError creates an actionable error for container launch failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	return issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image).
		WithSuggestion("Verify the image exists (try: " + engine + " images)").
		WithSuggestion("Check that volume mount paths exist on the host").
		Wrap(cause).
		BuildError()
}
