// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wiki-ci/wiki-ci/internal/container"
)

// PostgresPort is the port the Database context listens on.
const PostgresPort = "5432"

type (
	// Probe reports nil once a service accepts connections.
	Probe func(ctx context.Context) error

	// Readiness bounds how long WaitReady polls.
	Readiness struct {
		Attempts int
		// Backoff is the first delay; it doubles after every failed attempt.
		Backoff time.Duration
	}
)

// DefaultReadiness polls for about thirty seconds in total.
var DefaultReadiness = Readiness{Attempts: 8, Backoff: 250 * time.Millisecond}

// Wait polls probe until it succeeds or the attempts run out.
func (r Readiness) Wait(ctx context.Context, what string, probe Probe) error {
	return WaitReady(ctx, what, probe, r.Attempts, r.Backoff)
}

// WaitReady polls probe with exponential backoff. Cancellation of ctx stops
// the polling immediately.
func WaitReady(ctx context.Context, what string, probe Probe, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	err := container.RetryWithBackoff(ctx, attempts, backoff, func(int) (bool, error) {
		if err := probe(ctx); err != nil {
			return ctx.Err() == nil, err
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("%s not ready after %d attempts: %w", what, attempts, err)
	}
	return nil
}

// TCPProbe succeeds once something accepts TCP connections on host:port.
func TCPProbe(host, port string) Probe {
	addr := net.JoinHostPort(host, port)
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// PostgresProbe succeeds once the server at addr answers a ping as the
// postgres superuser. addr is host or host:port; the port defaults to 5432.
func PostgresProbe(addr string) Probe {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, PostgresPort)
	}
	dsn := fmt.Sprintf("postgres://postgres@%s/postgres?sslmode=disable&connect_timeout=2", addr)
	return func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(context.WithoutCancel(ctx))
		return conn.Ping(ctx)
	}
}
