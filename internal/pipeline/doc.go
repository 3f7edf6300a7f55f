// SPDX-License-Identifier: MPL-2.0

// Package pipeline selects and runs CI stages in registration order and
// turns their outcomes into a summary and an exit code.
package pipeline
