// Package reslock provides a filesystem-backed advisory lock shared by
// every keagw worker process on the same host. It serializes the
// read-check-write sequence of reservation mutations; list-only operations
// do not take it.
package reslock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrTimeout is returned by Acquire when the bounded wait elapses before
// the lock is obtained. Callers should map it to a retryable condition,
// not a hard failure.
var ErrTimeout = errors.New("reslock: timed out waiting for lock")

const pollInterval = 25 * time.Millisecond

// Lock is a named cross-process advisory lock.
type Lock struct {
	path    string
	timeout time.Duration
}

// New returns a lock backed by the file at path. The file is created on
// first acquisition and never removed.
func New(path string, timeout time.Duration) *Lock {
	return &Lock{
		path:    path,
		timeout: timeout,
	}
}

// Handle is a held acquisition. Release must be called on every exit path.
type Handle struct {
	f *os.File
}

// Acquire obtains exclusive ownership, waiting up to the configured
// timeout. The context can end the wait early.
func (l *Lock) Acquire(ctx context.Context) (*Handle, error) {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err = lockFile(f)
		if err == nil {
			return &Handle{f: f}, nil
		}
		if !isWouldBlock(err) {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release gives up ownership.
func (h *Handle) Release() error {
	defer h.f.Close()
	return unlockFile(h.f)
}
