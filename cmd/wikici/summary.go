// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/wiki-ci/wiki-ci/internal/pipeline"

// renderSummary styles the final "passed/ran (classification)" line.
// lipgloss drops the colors when the output is not a terminal.
func renderSummary(r pipeline.Result) string {
	switch {
	case !r.Pass():
		return ErrorStyle.Render(r.String())
	case !r.Full():
		return WarningStyle.Render(r.String())
	default:
		return SuccessStyle.Render(r.String())
	}
}
