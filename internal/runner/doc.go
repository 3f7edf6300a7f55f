// SPDX-License-Identifier: MPL-2.0

// Package runner executes CI commands against an execution context.
//
// A Runner prepares an environment (Build), runs a script to completion
// (Run), or starts a long-lived service (RunBackground) and hands back a
// BackgroundServer. Two backends share the contract: ContainerRunner drives a
// container engine, ShellRunner runs processes directly on the host and
// bootstraps throwaway PostgreSQL clusters for the Database context.
//
// Background servers are released exactly once. Stages acquire them through
// a Scope and defer Scope.Close, so release happens on every exit path,
// including a panic. Readiness is not tracked here; callers poll with
// WaitReady and a Probe.
package runner
