// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
)

// Scope owns the background servers started by one stage and releases them,
// newest first, when Close is called. Use it with defer:
//
//	scope := runner.NewScope(logger)
//	defer scope.Close()
//	db, err := scope.Start(ctx, r, runner.Database, runner.Command{})
type Scope struct {
	logger  *log.Logger
	servers []BackgroundServer
}

// NewScope creates an empty scope. A nil logger discards release errors.
func NewScope(logger *log.Logger) *Scope {
	return &Scope{logger: logger}
}

// Start launches cmd with r.RunBackground and tracks the resulting server.
func (s *Scope) Start(ctx context.Context, r Runner, ec ExecContext, cmd Command) (BackgroundServer, error) {
	srv, err := r.RunBackground(ctx, ec, cmd)
	if err != nil {
		return nil, err
	}
	return s.Track(srv), nil
}

// Track adds srv to the scope and returns it.
func (s *Scope) Track(srv BackgroundServer) BackgroundServer {
	s.servers = append(s.servers, srv)
	return srv
}

// Close releases every tracked server in reverse order. Release errors are
// logged and joined; a failing release does not stop the others.
func (s *Scope) Close() error {
	var errs []error
	for i := len(s.servers) - 1; i >= 0; i-- {
		if err := s.servers[i].Release(); err != nil {
			if s.logger != nil {
				s.logger.Warn("release background server", "error", err)
			}
			errs = append(errs, err)
		}
	}
	s.servers = nil
	return errors.Join(errs...)
}
