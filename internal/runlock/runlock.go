// Package runlock enforces single-instance batch execution.
//
// Both the one-shot run command and the scheduler take the same file lock,
// so a long manual run and a cron tick never process the database
// concurrently.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld reports that another process holds the lock.
var ErrHeld = errors.New("runlock: already held by another process")

// Acquire takes the lock at path without blocking. On success it returns a
// release function; when another process holds the lock it returns ErrHeld.
func Acquire(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runlock: create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("runlock: acquire %s: %w", path, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() { _ = lock.Unlock() }, nil
}
