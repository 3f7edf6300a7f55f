// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// PodmanEngine implements the Engine interface using the Podman CLI.
// On SELinux-enforcing hosts bind mounts are labeled with :z.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	allOpts := append([]BaseCLIEngineOption{
		WithName(string(EngineTypePodman)),
		WithVolumeFormatter(selinuxVolumeFormatter(isSELinuxEnabled)),
	}, opts...)
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, allOpts...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman answers.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	return e.RunCommandStatus(context.Background(), "version", "--format", "{{.Version}}") == nil
}

func isSELinuxEnabled() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// selinuxVolumeFormatter appends the shared :z label unless the volume
// already carries z or Z.
func selinuxVolumeFormatter(enabled func() bool) VolumeFormatFunc {
	return func(volume string) string {
		if !enabled() {
			return volume
		}

		parts := strings.Split(volume, ":")
		if len(parts) < 2 {
			return volume
		}
		if len(parts) == 2 {
			return volume + ":z"
		}

		for opt := range strings.SplitSeq(parts[len(parts)-1], ",") {
			if opt == "z" || opt == "Z" {
				return volume
			}
		}
		return volume + ",z"
	}
}
