package syncop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"omni/internal/errs"
)

// tryAcquire attempts a non-blocking exclusive lock on path, creating parent
// directories as needed. ok is false (with no error) when another process
// already holds the lock — the caller becomes an attacher.
func tryAcquire(path string) (*flock.Flock, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, &errs.IOError{Code: "U101", Path: path, Op: "mkdir", Err: err}
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, &errs.ArbiterError{Code: "U201", WorkDir: path, Op: "try-lock", Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	return fl, true, nil
}

// waitLocked blocks until fl's lock becomes available (the holder released
// it, normally by exiting) or ctx is cancelled, polling at pollInterval.
// gofrs/flock's own blocking Lock() doesn't accept a poll interval, so
// SYNCOP rolls its own loop to honor spec.md §5's "100 ms" fallback and
// remain cancellable.
func waitLocked(ctx context.Context, fl *flock.Flock, pollInterval time.Duration) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		ok, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("syncop: poll lock: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
