package binary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StaleLockThreshold is the maximum age of a lock before it's considered stale.
const StaleLockThreshold = 10 * time.Minute

// Lock is an exclusive, cross-process lock on a cache file.
type Lock struct {
	path  string
	owner string
	file  *os.File
}

// AcquireLock creates lockPath exclusively, polling every poll interval while
// another process holds it. Locks older than StaleLockThreshold are broken.
// It returns ErrLockHeld wrapped with the context error when ctx ends first.
func AcquireLock(ctx context.Context, lockPath string, poll time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		lock, err := tryLock(lockPath)
		if err == nil {
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		if isLockStale(lockPath) {
			_ = os.Remove(lockPath)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockHeld, lockPath, ctx.Err())
		case <-time.After(poll):
		}
	}
}

// tryLock uses O_CREATE|O_EXCL for atomic lock creation.
func tryLock(lockPath string) (*Lock, error) {
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	owner := uuid.NewString()
	lockData := fmt.Sprintf("pid=%d\nowner=%s\ntimestamp=%s\n", os.Getpid(), owner, time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{path: lockPath, owner: owner, file: file}, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// isLockStale checks if a lock file is older than the stale lock threshold.
func isLockStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockThreshold
}
