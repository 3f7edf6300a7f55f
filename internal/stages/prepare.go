// SPDX-License-Identifier: MPL-2.0

package stages

import (
	"context"
	"fmt"

	"github.com/wiki-ci/wiki-ci/internal/runner"
)

// PrepareContexts builds every execution context once.
func PrepareContexts(ctx context.Context, _ *runner.RunContext, r runner.Runner) error {
	for _, ec := range runner.Contexts() {
		if err := r.Build(ctx, ec); err != nil {
			return fmt.Errorf("prepare %s context: %w", ec, err)
		}
	}
	return nil
}
