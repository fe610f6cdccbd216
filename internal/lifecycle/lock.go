// Package lifecycle guards a data directory against concurrent services.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
)

// LockName is the lock file inside the data directory.
const LockName = "indexq.lock"

// DataDirLock is an exclusive cross-process lock on a data directory. The
// index state store and the search engine both assume a single writer.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates a lock for dir. Nothing is acquired yet.
func NewDataDirLock(dir string) *DataDirLock {
	lockPath := filepath.Join(dir, LockName)
	return &DataDirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Acquire takes the lock without blocking. A lock held elsewhere is reported
// as ErrCodeLockHeld.
func (l *DataDirLock) Acquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return ixerrors.StorageError("failed to create data directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return ixerrors.StorageError("failed to acquire data directory lock", err)
	}
	if !acquired {
		return ixerrors.New(ixerrors.ErrCodeLockHeld,
			fmt.Sprintf("data directory %s is in use", filepath.Dir(l.path)), nil).
			WithDetail("lock", l.path).
			WithSuggestion("stop the running service with `indexq stop` or check `indexq status`")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *DataDirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}

// IsLocked reports whether this instance holds the lock.
func (l *DataDirLock) IsLocked() bool {
	return l.locked
}
