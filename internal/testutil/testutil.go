// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Releaser is anything with a Release method, such as a background server.
type Releaser interface {
	Release() error
}

// MustWriteFile writes content to dir/name, creating dir if needed, and
// returns the full path. The test fails immediately on error.
func MustWriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	MustMkdirAll(t, filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustUnsetenv unsets the environment variable key and restores its
// original value, if any, when the test ends. Like t.Setenv it must not be
// used in parallel tests.
func MustUnsetenv(t testing.TB, key string) {
	t.Helper()
	originalValue, hadValue := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadValue {
			if err := os.Setenv(key, originalValue); err != nil {
				t.Errorf("failed to restore env %s: %v", key, err)
			}
			return
		}
		if err := os.Unsetenv(key); err != nil {
			t.Errorf("failed to unset env %s: %v", key, err)
		}
	})
}

// DeferRelease returns a cleanup function that releases r, logging any
// error. Release failures during cleanup are typically non-fatal.
func DeferRelease(t testing.TB, r Releaser) func() {
	t.Helper()
	return func() {
		t.Helper()
		if err := r.Release(); err != nil {
			t.Logf("warning: release returned error: %v", err)
		}
	}
}
