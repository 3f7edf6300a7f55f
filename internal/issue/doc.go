// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing errors that carry the failed operation,
// the resource involved and hints for fixing the problem.
//
// Setup failures (configuration, engine detection, results directory) are
// reported through ActionableError so the CLI can render them with hints.
// Stage failures use runner.Error instead and are never wrapped here.
package issue
