package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/filelock"
)

const (
	// DefaultLockWait bounds how long a mutation waits for the registry lock.
	DefaultLockWait = 30 * time.Second

	// DefaultStaleAfter is the age after which an install reservation is
	// considered abandoned.
	DefaultStaleAfter = 10 * time.Minute
)

// Store reads and writes the registry file of one store root.
type Store struct {
	layout     Layout
	lockWait   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithLockWait sets the bounded wait for the registry lock.
func WithLockWait(d time.Duration) Option { return func(s *Store) { s.lockWait = d } }

// WithStaleAfter sets the age after which reservations are discarded.
func WithStaleAfter(d time.Duration) Option { return func(s *Store) { s.staleAfter = d } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore returns a Store for layout.
func NewStore(layout Layout, opts ...Option) *Store {
	s := &Store{
		layout:     layout,
		lockWait:   DefaultLockWait,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the store's path layout.
func (s *Store) Layout() Layout { return s.layout }

// LockWait returns the bounded wait used for store locks.
func (s *Store) LockWait() time.Duration { return s.lockWait }

// StaleAfter returns the reservation expiry.
func (s *Store) StaleAfter() time.Duration { return s.staleAfter }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now().UTC() }

// Load returns a reconciled snapshot without locking or writing.
// A missing registry file yields an empty registry.
func (s *Store) Load() (*Registry, error) {
	r, err := s.read()
	if err != nil {
		return nil, err
	}
	r.Reconcile(s.layout, s.Now(), s.staleAfter)
	return r, nil
}

// Update runs fn on the registry under the exclusive store lock. The
// registry is loaded and reconciled first; if fn succeeds the result is
// written atomically. If fn fails nothing is written, except that
// reconciliation changes are still persisted.
func (s *Store) Update(ctx context.Context, fn func(*Registry) error) error {
	lock, err := filelock.Acquire(ctx, s.layout.LockFile(), s.lockWait)
	if err != nil {
		return err
	}
	defer lock.Release()

	r, err := s.read()
	if err != nil {
		return err
	}
	reconciled := r.Reconcile(s.layout, s.Now(), s.staleAfter)

	if err := fn(r); err != nil {
		if reconciled {
			if r, rerr := s.read(); rerr == nil {
				r.Reconcile(s.layout, s.Now(), s.staleAfter)
				s.write(r)
			}
		}
		return err
	}
	return s.write(r)
}

func (s *Store) read() (*Registry, error) {
	data, err := os.ReadFile(s.layout.RegistryFile())
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStateCorruption, err, "read registry")
	}

	r := &Registry{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStateCorruption, err,
			"registry %s is corrupt; fix or remove it", s.layout.RegistryFile())
	}
	if r.Version > SchemaVersion {
		return nil, errors.New(errors.ErrCodeStateCorruption,
			"registry %s has schema version %d, newer than supported %d", s.layout.RegistryFile(), r.Version, SchemaVersion)
	}
	r.Version = SchemaVersion
	r.init()
	return r, nil
}

func (s *Store) write(r *Registry) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return writeFileAtomic(s.layout.RegistryFile(), append(data, '\n'), 0o644)
}

// writeFileAtomic writes data by using a temporary file and an atomic rename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// Same directory, so the rename cannot cross filesystems.
	tmp, err := os.CreateTemp(dir, ".tmp-registry-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	var success bool
	defer func() {
		if !success {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	success = true
	return nil
}
