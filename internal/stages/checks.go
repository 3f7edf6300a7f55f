// SPDX-License-Identifier: MPL-2.0

package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wiki-ci/wiki-ci/internal/runner"
)

const rustChecksScript = `set -xe
RUSTFLAGS='-Dwarnings' cargo clippy --all-targets --all-features
cargo test --all-targets --all-features -- --include-ignored`

// RustChecks lints with warnings as errors, then runs the Rust tests against
// a throwaway database.
func (c Config) RustChecks(ctx context.Context, _ *runner.RunContext, r runner.Runner) error {
	scope := runner.NewScope(c.Logger)
	defer scope.Close()

	db, err := startDatabase(ctx, c, scope, r)
	if err != nil {
		return err
	}

	return r.Run(ctx, runner.Build, runner.Command{
		Env:           []string{"WIKI_CI_TEST_POSTGRES_HOST=" + db},
		IncludeSource: true,
		Script:        rustChecksScript,
	})
}

// NodeJSChecks lints the UI and runs its unit tests with a JUnit report in
// the results directory.
func NodeJSChecks(ctx context.Context, rc *runner.RunContext, r runner.Runner) error {
	report := resultsPath(rc, filepath.Join(workDir(rc), "ui")) + "/nodejs-unit-test.xml"

	return r.Run(ctx, runner.Build, runner.Command{
		Env:           []string{"ESLINT_USE_FLAT_CONFIG=false"},
		IncludeSource: true,
		Script: fmt.Sprintf(`set -xe
%s
cd ui
npm run lint
npm run test -- \
    --test-reporter=spec \
    --test-reporter-destination=stdout \
    --test-reporter=junit \
    --test-reporter-destination=%s`, nodeModulesLink, report),
	})
}

// startDatabase starts a database in scope and waits until it answers.
func startDatabase(ctx context.Context, c Config, scope *runner.Scope, r runner.Runner) (string, error) {
	db, err := scope.Start(ctx, r, runner.Database, runner.Command{})
	if err != nil {
		return "", fmt.Errorf("start database: %w", err)
	}
	addr, err := db.Address(ctx)
	if err != nil {
		return "", fmt.Errorf("database address: %w", err)
	}
	if err := c.Readiness.Wait(ctx, "database", c.DatabaseProbe(addr)); err != nil {
		return "", err
	}
	return addr, nil
}
