// Package filelock provides advisory exclusive file locks with a bounded wait.
//
// Locks are held on a file descriptor and released by [Lock.Release] or by
// process exit. The lock file itself is left in place.
package filelock

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// PollInterval is how often a contended lock is retried.
const PollInterval = 50 * time.Millisecond

// Lock is a held exclusive lock.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive lock on path, creating the file if needed.
// If another process holds the lock, Acquire polls until wait elapses and
// then fails with LOCK_CONTENTION. A wait of zero tries exactly once.
func Acquire(ctx context.Context, path string, wait time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := tryLock(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if ok {
			return &Lock{f: f}, nil
		}
		if !time.Now().Before(deadline) {
			f.Close()
			return nil, errors.New(errors.ErrCodeLockContention,
				"%s is locked by another lilyenv process (waited %s)", path, wait)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// Release drops the lock. It is safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlock(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil || l.f == nil {
		return ""
	}
	return l.f.Name()
}
