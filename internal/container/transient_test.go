// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
)

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	exit := func(code int) error {
		err := exec.CommandContext(t.Context(), "sh", "-c", fmt.Sprintf("exit %d", code)).Run()
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("expected ExitError for exit %d, got %v", code, err)
		}
		return exitErr
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: fmt.Errorf("build: %w", context.Canceled), want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "dockerfile missing", err: errors.New("open images/build.Dockerfile: no such file"), want: false},
		{name: "container exit 1", err: exit(1), want: false},
		{name: "engine exit 125", err: fmt.Errorf("pull: %w", exit(125)), want: true},
		{name: "dns", err: errors.New("Could not resolve host: registry-1.docker.io"), want: true},
		{name: "apt mirror", err: errors.New("Temporary failure resolving 'deb.debian.org'"), want: true},
		{name: "tls", err: errors.New("net/http: TLS handshake timeout"), want: true},
		{name: "overlay", err: errors.New("error creating overlay mount to /var/lib/containers"), want: true},
		{name: "rootless podman", err: errors.New("read /proc/sys/net/ipv4/ping_group_range"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransientError(tt.err); got != tt.want {
				t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
