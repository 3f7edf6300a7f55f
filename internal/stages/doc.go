// SPDX-License-Identifier: MPL-2.0

// Package stages defines the wiki's CI stages.
//
// Stages only talk to a runner.Runner, so the same policy runs in containers
// or directly on the host. Background services are acquired through a
// runner.Scope and released when the stage (or one browser iteration of it)
// returns.
package stages
