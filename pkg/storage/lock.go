package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created in the output directory while a run owns it.
const LockFileName = ".lock"

// ErrLocked means another process is mirroring into the same directory.
var ErrLocked = errors.New("output directory is in use by another run")

// Lock is an exclusive, process-level lock on an output directory
type Lock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the output directory lock without blocking.
func AcquireLock(root string) (*Lock, error) {
	path := filepath.Join(root, LockFileName)
	l := flock.New(path)

	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return &Lock{path: path, lock: l}, nil
}

// Path returns the lock file path
func (l *Lock) Path() string { return l.path }

// Release unlocks the directory
func (l *Lock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
