// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestWaitReady(t *testing.T) {
	t.Parallel()

	calls := 0
	probe := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	if err := WaitReady(t.Context(), "app", probe, 5, time.Millisecond); err != nil {
		t.Fatalf("WaitReady() = %v", err)
	}
	if calls != 3 {
		t.Errorf("probe calls = %d, want 3", calls)
	}
}

func TestWaitReady_GivesUp(t *testing.T) {
	t.Parallel()

	err := Readiness{Attempts: 3, Backoff: time.Millisecond}.Wait(t.Context(), "database",
		func(context.Context) error { return errors.New("connection refused") })
	if err == nil || !strings.Contains(err.Error(), "database not ready after 3 attempts") {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestTCPProbe(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, port, _ := net.SplitHostPort(ln.Addr().String())

	if err := TCPProbe(host, port)(t.Context()); err != nil {
		t.Errorf("probe of open port = %v", err)
	}

	ln.Close()
	if err := TCPProbe(host, port)(t.Context()); err == nil {
		t.Error("probe of closed port succeeded")
	}
}
