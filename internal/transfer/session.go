package transfer

import (
	"context"
	"errors"
)

// ErrChannelUnavailable is surfaced while the pool's circuit breaker is
// open: callers fail fast instead of queueing up to time out one by one.
var ErrChannelUnavailable = errors.New("transfer channel unavailable")

// ErrNotFound reports a missing remote file or directory, expected for
// future sail dates the supplier has not published yet.
var ErrNotFound = errors.New("remote path not found")

// Session is one live connection to the supplier file server.
type Session interface {
	// ListDir lists entry names under path. Returns ErrNotFound for a
	// missing directory.
	ListDir(ctx context.Context, path string) ([]string, error)
	// Download reads the whole remote file into memory. Returns ErrNotFound
	// for a missing file; respects ctx cancellation and deadline.
	Download(ctx context.Context, path string) ([]byte, error)
	// Noop is a cheap liveness probe.
	Noop(ctx context.Context) error
	Close() error
}

// Dialer opens new sessions. The pool recreates sessions through it when
// a liveness probe fails.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}
