// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/wiki-ci/wiki-ci/internal/issue"
)

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("docker")

	tests := []struct {
		name string
		opts BuildOptions
		want []string
	}{
		{
			name: "context only",
			opts: BuildOptions{},
			want: []string{"build", "."},
		},
		{
			name: "relative dockerfile joined with context",
			opts: BuildOptions{
				ContextDir: "/src",
				Dockerfile: "images/build.Dockerfile",
				Tag:        "wiki-ci:build-abc",
			},
			want: []string{"build", "-f", "/src/images/build.Dockerfile", "-t", "wiki-ci:build-abc", "/src"},
		},
		{
			name: "build args sorted",
			opts: BuildOptions{
				ContextDir: "/src",
				BuildArgs:  map[string]string{"ZED": "1", "CI_USER": "1000:1000"},
				NoCache:    true,
			},
			want: []string{"build", "--no-cache", "--build-arg", "CI_USER=1000:1000", "--build-arg", "ZED=1", "/src"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.BuildArgs(tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("docker")
	got := e.RunArgs(RunOptions{
		Image:   "wiki-ci:build-abc",
		Command: []string{"sh", "-c", "cargo test"},
		WorkDir: "/work",
		Env:     []string{"B=2", "A=1"},
		Volumes: []string{"/work:/work"},
		User:    "1000:1000",
		Remove:  true,
	})

	want := []string{
		"run", "--rm", "-u", "1000:1000", "-v", "/work:/work", "-w", "/work",
		"-e", "B=2", "-e", "A=1", "wiki-ci:build-abc", "sh", "-c", "cargo test",
	}
	if !slices.Equal(got, want) {
		t.Errorf("RunArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestRunArgs_VolumeFormatter(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("podman", WithVolumeFormatter(selinuxVolumeFormatter(func() bool { return true })))
	got := e.RunArgs(RunOptions{Image: "img", Volumes: []string{"/a:/a", "/b:/b:ro", "/c:/c:Z"}})

	for _, want := range []string{"/a:/a:z", "/b:/b:ro,z", "/c:/c:Z"} {
		if !slices.Contains(got, want) {
			t.Errorf("RunArgs() = %v, missing %q", got, want)
		}
	}
}

func TestRun_ExitCodeIsNotAnError(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("run", fakeReply{Stdout: "hello", ExitCode: 3})
	e := fake.engine(t)

	var out bytes.Buffer
	result, err := e.Run(t.Context(), RunOptions{Image: "img", Remove: true, Stdout: &out})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 3 || result.Error != nil || result.Signaled {
		t.Errorf("Run() result = %+v, want exit 3 without launch error", result)
	}
	if out.String() != "hello" {
		t.Errorf("stdout = %q, want %q", out.String(), "hello")
	}
	if args := fake.last(t); slices.Contains(args, "-d") {
		t.Errorf("foreground run must not detach: %v", args)
	}
}

func TestRunDetached(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("run", fakeReply{Stdout: "3f2a9c\n"})
	e := fake.engine(t)

	id, err := e.RunDetached(t.Context(), RunOptions{Image: "postgres:16-alpine", Remove: true})
	if err != nil {
		t.Fatalf("RunDetached() error = %v", err)
	}
	if id != "3f2a9c" {
		t.Errorf("RunDetached() id = %q, want %q", id, "3f2a9c")
	}

	args := fake.last(t)
	if !slices.Contains(args, "-d") || slices.Contains(args, "--rm") {
		t.Errorf("detached run args = %v, want -d without --rm", args)
	}
}

func TestRunDetached_EmptyID(t *testing.T) {
	t.Parallel()

	e := newFakeExec().engine(t)
	_, err := e.RunDetached(t.Context(), RunOptions{Image: "img"})

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("RunDetached() error = %v, want ActionableError", err)
	}
	if ae.Resource != "img" {
		t.Errorf("Resource = %q, want %q", ae.Resource, "img")
	}
}

func TestInspectAddress(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("inspect", fakeReply{Stdout: "172.17.0.3\n"})
	addr, err := fake.engine(t).InspectAddress(t.Context(), "abc")
	if err != nil {
		t.Fatalf("InspectAddress() error = %v", err)
	}
	if addr != "172.17.0.3" {
		t.Errorf("InspectAddress() = %q", addr)
	}

	args := fake.last(t)
	if args[0] != "inspect" || args[len(args)-1] != "abc" {
		t.Errorf("inspect args = %v", args)
	}
}

func TestInspectAddress_Empty(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("inspect", fakeReply{Stdout: "\n"})
	if _, err := fake.engine(t).InspectAddress(t.Context(), "abc"); err == nil {
		t.Fatal("InspectAddress() expected error for empty address")
	}
}

func TestBuild_FailureIsActionable(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("build", fakeReply{Stderr: "no such file", ExitCode: 1})
	err := fake.engine(t).Build(t.Context(), BuildOptions{ContextDir: ".", Tag: "wiki-ci:build-x"})

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("Build() error = %v, want ActionableError", err)
	}
	if ae.Operation != "build container image" || ae.Resource != "wiki-ci:build-x" {
		t.Errorf("ActionableError = %+v", ae)
	}
	if !strings.Contains(ae.Format(false), "docker pull") {
		t.Errorf("suggestions should name the engine: %s", ae.Format(false))
	}
}

func TestStopLogsRemove(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("logs", fakeReply{Stdout: "ready to accept connections"})
	e := fake.engine(t)
	ctx := t.Context()

	if err := e.Stop(ctx, "abc"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	var out bytes.Buffer
	if err := e.Logs(ctx, "abc", &out, &out); err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if err := e.Remove(ctx, "abc", true); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	want := [][]string{{"stop", "abc"}, {"logs", "abc"}, {"rm", "-f", "abc"}}
	got := fake.invocations()
	if len(got) != len(want) {
		t.Fatalf("invocations = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("invocation %d = %v, want %v", i, got[i], want[i])
		}
	}
	if out.String() != "ready to accept connections" {
		t.Errorf("logs output = %q", out.String())
	}
}

func TestStop_FailureIncludesStderr(t *testing.T) {
	t.Parallel()

	fake := newFakeExec().on("stop", fakeReply{Stderr: "No such container: abc", ExitCode: 1})
	err := fake.engine(t).Stop(t.Context(), "abc")
	if err == nil || !strings.Contains(err.Error(), "No such container") {
		t.Errorf("Stop() error = %v, want stderr in message", err)
	}
}

func TestEngineType_Validate(t *testing.T) {
	t.Parallel()

	for _, et := range []EngineType{EngineTypeDocker, EngineTypePodman} {
		if err := et.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", et, err)
		}
	}
	if err := EngineType("lxc").Validate(); err == nil {
		t.Error("lxc.Validate() expected error")
	}
}

func TestEngineNotAvailableError_Is(t *testing.T) {
	t.Parallel()

	err := error(&EngineNotAvailableError{Engine: "docker", Reason: "not installed"})
	if !errors.Is(err, ErrEngineNotAvailable) {
		t.Error("errors.Is(err, ErrEngineNotAvailable) = false")
	}
}
