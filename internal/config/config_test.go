// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wiki-ci/wiki-ci/internal/container"
	"github.com/wiki-ci/wiki-ci/internal/issue"
	"github.com/wiki-ci/wiki-ci/internal/runner"
	"github.com/wiki-ci/wiki-ci/internal/testutil"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, path, err := loadWithOptions(context.Background(), LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty", path)
	}
	if cfg.Runner != runner.BackendContainer {
		t.Errorf("Runner = %q, want container", cfg.Runner)
	}
	if cfg.ContainerEngine != container.EngineTypeDocker {
		t.Errorf("ContainerEngine = %q, want docker", cfg.ContainerEngine)
	}
	if cfg.ResultsDir != "test_results" {
		t.Errorf("ResultsDir = %q", cfg.ResultsDir)
	}
	if len(cfg.RunID) != runIDLength {
		t.Errorf("RunID = %q, want %d characters", cfg.RunID, runIDLength)
	}
	if cfg.HostCwd != dir {
		t.Errorf("HostCwd = %q, want %q", cfg.HostCwd, dir)
	}
	if cfg.E2E.Expiration != 1000 {
		t.Errorf("Expiration = %d, want 1000", cfg.E2E.Expiration)
	}
	if got := strings.Join(cfg.E2E.Browsers, ","); got != "firefox,chrome" {
		t.Errorf("Browsers = %q", got)
	}
	if cfg.Release.Grace != runner.DefaultReleaseGrace {
		t.Errorf("Grace = %s", cfg.Release.Grace)
	}
}

func TestLoad_LocalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := testutil.MustWriteFile(t, dir, ConfigFileName, `
run_id: "abc123"
runner: "bare"
container: {
	user: "1000:1000"
}
e2e: browsers: ["electron"]
readiness: {
	attempts: 3
	backoff:  "50ms"
}
ui: group: true
`)

	cfg, path, err := loadWithOptions(context.Background(), LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path != want {
		t.Errorf("resolved path = %q, want %q", path, want)
	}
	if cfg.RunID != "abc123" {
		t.Errorf("RunID = %q", cfg.RunID)
	}
	if cfg.Runner != runner.BackendBare {
		t.Errorf("Runner = %q", cfg.Runner)
	}
	if cfg.Container.User != "1000:1000" {
		t.Errorf("User = %q", cfg.Container.User)
	}
	// Untouched siblings keep their defaults.
	if cfg.Container.DatabaseImage != "postgres:16-alpine" {
		t.Errorf("DatabaseImage = %q", cfg.Container.DatabaseImage)
	}
	if len(cfg.E2E.Browsers) != 1 || cfg.E2E.Browsers[0] != "electron" {
		t.Errorf("Browsers = %v", cfg.E2E.Browsers)
	}
	if got := cfg.ReadinessPolicy(); got.Attempts != 3 || got.Backoff != 50*time.Millisecond {
		t.Errorf("ReadinessPolicy = %+v", got)
	}
	if !cfg.UI.Group {
		t.Error("UI.Group = false, want true")
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, _, err := loadWithOptions(context.Background(), LoadOptions{
		Dir:            dir,
		ConfigFilePath: filepath.Join(dir, "nope.cue"),
	})
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.Operation != "load configuration" {
		t.Errorf("error = %v, want actionable load configuration error", err)
	}
}

func TestLoad_ExplicitFileWinsOverLocal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, dir, ConfigFileName, `results_dir: "local"`)
	explicit := testutil.MustWriteFile(t, t.TempDir(), "other.cue", `results_dir: "explicit"`)

	cfg, path, err := loadWithOptions(context.Background(), LoadOptions{Dir: dir, ConfigFilePath: explicit})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path != explicit || cfg.ResultsDir != "explicit" {
		t.Errorf("path = %q results_dir = %q", path, cfg.ResultsDir)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown runner", `runner: "vm"`, "runner"},
		{"unknown field", `colour: "blue"`, "colour"},
		{"bad duration", `release: grace: "soon"`, "release.grace"},
		{"zero attempts", `readiness: attempts: 0`, "readiness.attempts"},
		{"syntax", `runner: `, ConfigFileName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutil.MustWriteFile(t, dir, ConfigFileName, tt.content)
			_, _, err := loadWithOptions(context.Background(), LoadOptions{Dir: dir})
			if err == nil {
				t.Fatal("expected schema error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, dir, ConfigFileName, `results_dir: "from-file"`)
	t.Setenv("WIKI_CI_RESULTS_DIR", "from-env")
	t.Setenv("WIKI_CI_UI_FAIL_FAST", "true")
	t.Setenv("WIKI_CI_READINESS_BACKOFF", "2s")

	cfg, _, err := loadWithOptions(context.Background(), LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ResultsDir != "from-env" {
		t.Errorf("ResultsDir = %q, want from-env", cfg.ResultsDir)
	}
	if !cfg.UI.FailFast {
		t.Error("UI.FailFast = false, want true")
	}
	if cfg.Readiness.Backoff != 2*time.Second {
		t.Errorf("Backoff = %s", cfg.Readiness.Backoff)
	}
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("WIKI_CI_CONTAINER_ENGINE", "lxc")

	_, _, err := loadWithOptions(context.Background(), LoadOptions{Dir: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	const (
		fromDotEnv = "WIKI_CI_RUN_ID"
		preset     = "WIKI_CI_RESULTS_DIR"
	)
	testutil.MustUnsetenv(t, fromDotEnv)
	t.Setenv(preset, "kept")

	dir := t.TempDir()
	testutil.MustWriteFile(t, dir, DotEnvFileName, fromDotEnv+"=dotenv1\n"+preset+"=replaced\n")

	cfg, _, err := loadWithOptions(context.Background(), LoadOptions{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RunID != "dotenv1" {
		t.Errorf("RunID = %q, want dotenv1", cfg.RunID)
	}
	if cfg.ResultsDir != "kept" {
		t.Errorf("ResultsDir = %q, want kept", cfg.ResultsDir)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, LoadOptions{Dir: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestNewRunID(t *testing.T) {
	t.Parallel()

	a, b := NewRunID(), NewRunID()
	if len(a) != runIDLength || a == b {
		t.Errorf("NewRunID() = %q, %q", a, b)
	}
}
