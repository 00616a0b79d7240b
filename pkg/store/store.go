package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// Downloader fetches the archive of a catalog entry into w, verifying its
// checksum. A mismatch must be reported as CHECKSUM_MISMATCH.
type Downloader interface {
	Download(ctx context.Context, e catalog.Entry, w io.Writer) error
}

// Checksummer is implemented by downloaders that can report an entry's
// expected digest without downloading it. It enables reuse of cached
// archives.
type Checksummer interface {
	Checksum(ctx context.Context, e catalog.Entry) (string, error)
}

// reservationPoll is how often a waiting install checks for the record.
const reservationPoll = 250 * time.Millisecond

// Store manages interpreter installs.
type Store struct {
	Registry   *registry.Store
	Downloader Downloader
	Logger     *log.Logger
}

// New creates a Store. If logger is nil, the default logger is used.
func New(reg *registry.Store, dl Downloader, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{Registry: reg, Downloader: dl, Logger: logger}
}

func (s *Store) layout() registry.Layout { return s.Registry.Layout() }

// ListInstalled returns the installed interpreters, newest first.
// It never locks or writes.
func (s *Store) ListInstalled() ([]registry.Interpreter, error) {
	r, err := s.Registry.Load()
	if err != nil {
		return nil, err
	}
	ids := r.InstalledBuilds()
	out := make([]registry.Interpreter, len(ids))
	for i, id := range ids {
		out[i], _ = r.Interpreter(id)
	}
	return out, nil
}

// Installed reports whether id is installed and intact.
func (s *Store) Installed(id version.BuildID) (registry.Interpreter, bool, error) {
	r, err := s.Registry.Load()
	if err != nil {
		return registry.Interpreter{}, false, err
	}
	in, ok := r.Interpreter(id)
	return in, ok, nil
}

// Remove deletes an installed interpreter. It refuses with
// DEPENDENT_VIRTUALENVS while any virtualenv uses it.
func (s *Store) Remove(ctx context.Context, id version.BuildID) error {
	return s.Registry.Update(ctx, func(r *registry.Registry) error {
		in, err := r.RemoveInterpreter(id)
		if err != nil {
			return err
		}
		if err := removeTree(s.layout(), in.Dir); err != nil {
			return fmt.Errorf("remove %s: %w", in.Dir, err)
		}
		s.Logger.Info("removed interpreter", "build", id)
		return nil
	})
}

// removeTree moves dir aside under a hidden name and deletes it, so a
// crash mid-delete never leaves a directory that looks complete.
func removeTree(l registry.Layout, dir string) error {
	tmp, err := os.MkdirTemp(l.PythonsDir(), registry.TempPrefix+"remove-")
	if err != nil {
		return os.RemoveAll(dir)
	}
	trash := filepath.Join(tmp, "tree")
	if err := os.Rename(dir, trash); err != nil {
		os.RemoveAll(tmp)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(tmp)
}

func notInCatalog(id version.BuildID) error {
	return errors.New(errors.ErrCodeNotFound, "no downloadable build %s for this platform", id)
}

// ClearDownloads deletes the cached archives and returns how many files
// and bytes were removed. In-flight partial downloads are left alone.
func (s *Store) ClearDownloads() (int, int64, error) {
	dir := s.layout().DownloadsDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	var (
		count int
		size  int64
	)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return count, size, err
		}
		count++
		size += info.Size()
	}
	return count, size, nil
}
