package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/lilyenv/pkg/archive"
	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/observability"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// EnsureInstalled makes sure build id is installed and returns its record.
// The bool reports whether this call performed the install. cat is only
// consulted when a download is needed and may be nil for offline use.
func (s *Store) EnsureInstalled(ctx context.Context, id version.BuildID, cat *catalog.Catalog) (registry.Interpreter, bool, error) {
	if in, ok, err := s.Installed(id); err != nil || ok {
		return in, false, err
	}

	var entry catalog.Entry
	if cat != nil {
		entry, _ = cat.Lookup(id)
	}
	if entry.Name == "" {
		return registry.Interpreter{}, false, notInCatalog(id)
	}

	deadline := time.Now().Add(s.Registry.StaleAfter())
	for {
		token := uuid.NewString()
		in, state, err := s.reserve(ctx, id, token)
		if err != nil {
			return registry.Interpreter{}, false, err
		}
		switch state {
		case reserveInstalled:
			return in, false, nil
		case reserveOwned:
			in, err := s.install(ctx, entry, token)
			if err != nil {
				return registry.Interpreter{}, false, err
			}
			return in, true, nil
		}

		// Another process is installing the same build.
		s.Logger.Info("waiting for concurrent install", "build", id)
		if in, ok, err := s.waitForInstall(ctx, id, deadline); err != nil || ok {
			return in, false, err
		}
	}
}

type reserveState int

const (
	reserveOwned reserveState = iota
	reserveInstalled
	reserveBusy
)

func (s *Store) reserve(ctx context.Context, id version.BuildID, token string) (registry.Interpreter, reserveState, error) {
	var (
		in    registry.Interpreter
		state reserveState
	)
	err := s.Registry.Update(ctx, func(r *registry.Registry) error {
		if rec, ok := r.Interpreter(id); ok {
			in, state = rec, reserveInstalled
			return nil
		}
		if _, busy := r.Reservation(id); busy {
			state = reserveBusy
			return nil
		}
		r.Reserve(id, registry.Reservation{Token: token, PID: os.Getpid(), CreatedAt: s.Registry.Now()})
		state = reserveOwned
		return nil
	})
	return in, state, err
}

// waitForInstall polls until id is recorded or its reservation goes away.
func (s *Store) waitForInstall(ctx context.Context, id version.BuildID, deadline time.Time) (registry.Interpreter, bool, error) {
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return registry.Interpreter{}, false, ctx.Err()
		case <-time.After(reservationPoll):
		}

		r, err := s.Registry.Load()
		if err != nil {
			return registry.Interpreter{}, false, err
		}
		if in, ok := r.Interpreter(id); ok {
			return in, true, nil
		}
		if _, busy := r.Reservation(id); !busy {
			return registry.Interpreter{}, false, nil
		}
	}
	return registry.Interpreter{}, false, errors.New(errors.ErrCodeLockContention,
		"timed out waiting for another lilyenv process to install %s", id)
}

// install downloads, extracts and commits entry. The reservation carrying
// token is released on every path.
func (s *Store) install(ctx context.Context, e catalog.Entry, token string) (in registry.Interpreter, err error) {
	l := s.layout()
	id := e.Build
	hooks := observability.Provision()
	start := time.Now()
	var size int64

	hooks.OnInstallStart(ctx, id.String())
	defer func() {
		hooks.OnInstallComplete(ctx, id.String(), size, time.Since(start), err)
	}()

	tmp := filepath.Join(l.PythonsDir(), registry.TempPrefix+id.String()+"-"+uuid.NewString())
	defer func() {
		os.RemoveAll(tmp)
		if err != nil {
			s.unreserve(id, token)
		}
	}()

	archivePath, err := s.fetch(ctx, e)
	if err != nil {
		return in, err
	}

	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return in, errors.Wrap(errors.ErrCodeInternal, err, "create install directory")
	}
	size, err = extractFile(archivePath, e.Name, tmp)
	if err != nil {
		os.Remove(archivePath)
		return in, errors.Wrap(errors.ErrCodeDownloadFailed, err, "extract %s", e.Name)
	}
	if err := normalizeLayout(tmp); err != nil {
		return in, errors.Wrap(errors.ErrCodeDownloadFailed, err, "normalize %s", e.Name)
	}
	if !registry.InterpreterComplete(tmp) {
		return in, errors.New(errors.ErrCodeDownloadFailed, "archive %s has no python/bin/python3", e.Name)
	}

	final := l.InterpreterDir(id)
	if err := fixupSysconfig(tmp, filepath.Join(final, "python")); err != nil {
		return in, errors.Wrap(errors.ErrCodeDownloadFailed, err, "relocate %s", e.Name)
	}

	err = s.Registry.Update(ctx, func(r *registry.Registry) error {
		if registry.InterpreterComplete(final) {
			s.Logger.Debug("adopting existing install", "build", id)
		} else {
			os.RemoveAll(final)
			if err := os.Rename(tmp, final); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "commit %s", id)
			}
		}
		in = registry.Interpreter{Build: id, Dir: final, InstalledAt: s.Registry.Now(), ReleaseTag: e.ReleaseTag}
		r.AddInterpreter(in)
		return nil
	})
	if err != nil {
		return registry.Interpreter{}, err
	}
	s.Logger.Info("installed interpreter", "build", id, "release", e.ReleaseTag)
	return in, nil
}

func (s *Store) unreserve(id version.BuildID, token string) {
	// Use a fresh context: the caller's may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), s.Registry.LockWait())
	defer cancel()
	if err := s.Registry.Update(ctx, func(r *registry.Registry) error {
		r.Unreserve(id, token)
		return nil
	}); err != nil {
		s.Logger.Warn("could not release install reservation", "build", id, "err", err)
	}
}

// fetch returns a verified archive for e in the download cache,
// downloading it unless a cached copy still matches its checksum.
func (s *Store) fetch(ctx context.Context, e catalog.Entry) (string, error) {
	dir := s.layout().DownloadsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create download cache")
	}
	path := filepath.Join(dir, e.Name)

	if s.cachedArchiveValid(ctx, e, path) {
		s.Logger.Debug("using cached archive", "path", path)
		return path, nil
	}

	f, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create download file")
	}
	defer os.Remove(f.Name())

	s.Logger.Info("downloading", "build", e.Build, "url", e.URL)
	err = s.Downloader.Download(ctx, e, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrap(errors.ErrCodeDownloadFailed, err, "download %s", e.Build)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "store download")
	}
	return path, nil
}

func (s *Store) cachedArchiveValid(ctx context.Context, e catalog.Entry, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	want := e.SHA256
	if want == "" {
		cs, ok := s.Downloader.(Checksummer)
		if !ok {
			return false
		}
		var err error
		if want, err = cs.Checksum(ctx, e); err != nil {
			return false
		}
	}
	got, err := fileSHA256(path)
	return err == nil && strings.EqualFold(got, strings.TrimSpace(want))
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func extractFile(path, name, dest string) (int64, error) {
	c, err := archive.CompressionOf(name)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return archive.Extract(f, c, dest)
}
