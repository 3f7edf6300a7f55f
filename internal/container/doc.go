// SPDX-License-Identifier: MPL-2.0

// Package container drives a container engine (Docker or Podman) through its CLI.
//
// The Engine interface covers what the CI runner needs: building and pulling
// images, foreground runs, detached runs that return a container ID, and the
// stop/logs/remove/inspect calls used to tear detached containers down.
// DockerEngine and PodmanEngine both embed BaseCLIEngine, which builds the CLI
// arguments and executes them through an injectable ExecCommandFunc.
//
// NewEngine selects the preferred engine and falls back to the other one when
// the preferred binary is unavailable.
package container
