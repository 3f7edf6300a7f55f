// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// transientMarkers are error fragments from image builds and pulls that
// usually succeed when retried.
var transientMarkers = []string{
	// rootless Podman races and OCI runtime hiccups
	"ping_group_range",
	"OCI runtime error",
	// registry and package-mirror networking
	"Temporary failure resolving",
	"Could not resolve host",
	"connection timed out",
	"connection reset by peer",
	"TLS handshake timeout",
	// overlay storage races
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientError reports whether err is a container engine failure that
// may succeed on retry. Context cancellation is never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// 125 is the engine's own generic failure, not the container's.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 125 {
		return true
	}

	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
