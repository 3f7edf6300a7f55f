// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"slices"

	"github.com/wiki-ci/wiki-ci/internal/runner"
)

type (
	// StageFunc is the body of a stage.
	StageFunc func(ctx context.Context, rc *runner.RunContext, r runner.Runner) error

	// Stage is a named unit of pipeline work.
	Stage struct {
		Name string
		Run  StageFunc
	}
)

// Select returns the stages named in names, or every stage when all is set.
// The registration order of stages is kept; the order of names is not.
// Unknown names are ignored.
func Select(stages []Stage, names []string, all bool) []Stage {
	if all {
		return slices.Clone(stages)
	}

	var selected []Stage
	for _, s := range stages {
		if slices.Contains(names, s.Name) {
			selected = append(selected, s)
		}
	}
	return selected
}

// Names returns the names of stages in order.
func Names(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}
