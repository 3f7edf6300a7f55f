// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// ContainerSemaphore returns a process-wide buffered channel that limits concurrent
// container operations in tests. Acquire a slot by sending, release by receiving:
//
//	sem := testutil.ContainerSemaphore()
//	sem <- struct{}{}
//	defer func() { <-sem }()
//
// The capacity is WIKI_CI_TEST_CONTAINER_PARALLEL when set, else
// min(GOMAXPROCS, 2). Small CI runners hang rather than fail when too many
// containers start at once.
var ContainerSemaphore = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism())
})

func containerParallelism() int {
	if v := os.Getenv("WIKI_CI_TEST_CONTAINER_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return min(runtime.GOMAXPROCS(0), 2)
}

// RequireContainerProvider skips the test in -short mode or when no
// Docker-compatible provider answers.
func RequireContainerProvider(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !containerProviderAvailable() {
		t.Skip("skipping integration test: no container provider available")
	}
}

// containerProviderAvailable recovers because provider detection can panic
// on hosts without an engine.
func containerProviderAvailable() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}
