package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/version"
)

func build(t *testing.T, s string) version.BuildID {
	t.Helper()
	id, err := version.ParseBuildID(s)
	require.NoError(t, err)
	return id
}

// installFake creates a complete interpreter directory for id.
func installFake(t *testing.T, l Layout, id version.BuildID) {
	t.Helper()
	py := l.Python(id)
	require.NoError(t, os.MkdirAll(filepath.Dir(py), 0o755))
	require.NoError(t, os.WriteFile(py, []byte("#!/bin/sh\n"), 0o755))
}

// venvFake creates a complete virtualenv directory.
func venvFake(t *testing.T, l Layout, project string, id version.BuildID) string {
	t.Helper()
	dir := l.VirtualenvDir(project, id)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), nil, 0o644))
	return dir
}

func TestRoundTripEmpty(t *testing.T) {
	s := NewStore(Layout{Root: t.TempDir()})
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(*Registry) error { return nil }))

	r, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, r.Version)
	require.Empty(t, r.Interpreters)
	require.Empty(t, r.Virtualenvs(""))
}

func TestRoundTripSharedBuild(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	s := NewStore(l)
	ctx := context.Background()
	id := build(t, "3.12.2")

	installFake(t, l, id)
	dirA := venvFake(t, l, "alpha", id)
	dirB := venvFake(t, l, "beta", id)

	require.NoError(t, s.Update(ctx, func(r *Registry) error {
		r.AddInterpreter(Interpreter{Build: id, Dir: l.InterpreterDir(id), InstalledAt: time.Unix(100, 0).UTC()})
		require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "alpha", Build: id, Dir: dirA}))
		require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "beta", Build: id, Dir: dirB}))
		return r.SetDirectory("alpha", "/src/alpha")
	}))

	r, err := s.Load()
	require.NoError(t, err)

	in, ok := r.Interpreter(id)
	require.True(t, ok)
	require.Equal(t, time.Unix(100, 0).UTC(), in.InstalledAt)

	venvs := r.Virtualenvs("")
	require.Len(t, venvs, 2)
	require.Equal(t, "alpha", venvs[0].Project)
	require.Equal(t, "beta", venvs[1].Project)

	p, ok := r.Project("alpha")
	require.True(t, ok)
	require.Equal(t, "/src/alpha", p.Directory)
	require.Len(t, r.DependentVirtualenvs(id), 2)
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	s := NewStore(l)
	ctx := context.Background()

	boom := errors.New(errors.ErrCodeInternal, "boom")
	err := s.Update(ctx, func(r *Registry) error {
		_, _ = r.EnsureProject("ghost")
		return boom
	})
	require.ErrorIs(t, err, boom)

	r, err := s.Load()
	require.NoError(t, err)
	_, ok := r.Project("ghost")
	require.False(t, ok)
}

func TestLoadCorrupt(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	require.NoError(t, os.WriteFile(l.RegistryFile(), []byte("{not json"), 0o644))

	_, err := NewStore(l).Load()
	require.True(t, errors.Is(err, errors.ErrCodeStateCorruption), "got %v", err)
	require.Equal(t, 7, errors.ExitCode(err))
}

func TestLoadNewerSchema(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	require.NoError(t, os.WriteFile(l.RegistryFile(), []byte(`{"version": 99}`), 0o644))

	_, err := NewStore(l).Load()
	require.True(t, errors.Is(err, errors.ErrCodeStateCorruption), "got %v", err)
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	require.NoError(t, os.WriteFile(l.RegistryFile(), []byte(`{"version": 1, "future": true, "shell": "fish"}`), 0o644))

	r, err := NewStore(l).Load()
	require.NoError(t, err)
	require.Equal(t, "fish", r.Shell)
}

func TestReconcileDropsMissingAndAdoptsComplete(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	gone := build(t, "3.11.8")
	present := build(t, "3.12.2")
	partial := build(t, "3.13.0")

	r := New()
	r.AddInterpreter(Interpreter{Build: gone, Dir: l.InterpreterDir(gone)})
	require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "p", Build: gone, Dir: l.VirtualenvDir("p", gone)}))

	installFake(t, l, present)
	venvFake(t, l, "p", present)
	require.NoError(t, os.MkdirAll(l.InterpreterDir(partial), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(l.PythonsDir(), TempPrefix+"3.13.0-x"), 0o755))
	require.NoError(t, os.MkdirAll(l.VirtualenvDir("p", partial), 0o755))

	require.True(t, r.Reconcile(l, time.Now(), time.Minute))

	require.Equal(t, []version.BuildID{present}, r.InstalledBuilds())
	require.Equal(t, []version.BuildID{present}, r.ProjectBuilds("p"))
	require.False(t, r.Reconcile(l, time.Now(), time.Minute), "reconcile is idempotent")
}

func TestReconcileExpiresReservations(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	now := time.Now()
	r := New()
	r.Reserve(build(t, "3.12.2"), Reservation{Token: "old", CreatedAt: now.Add(-time.Hour)})
	r.Reserve(build(t, "3.12.1"), Reservation{Token: "new", CreatedAt: now})

	r.Reconcile(l, now, 10*time.Minute)

	_, ok := r.Reservation(build(t, "3.12.2"))
	require.False(t, ok)
	_, ok = r.Reservation(build(t, "3.12.1"))
	require.True(t, ok)
}

func TestRemoveProjectRemovesOnlyItsVirtualenvs(t *testing.T) {
	r := New()
	id := build(t, "3.12.2")
	require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "a", Build: id}))
	require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "a", Build: build(t, "3.11.8")}))
	require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "b", Build: id}))

	removed, err := r.RemoveProject("a")
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.Equal(t, "3.12.2", removed[0].Build.String(), "newest first")

	_, ok := r.Project("a")
	require.False(t, ok)
	require.Len(t, r.Virtualenvs(""), 1)
	require.Equal(t, "b", r.Virtualenvs("")[0].Project)

	_, err = r.RemoveProject("a")
	require.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestRemoveInterpreterWithDependents(t *testing.T) {
	r := New()
	id := build(t, "3.12.2")
	r.AddInterpreter(Interpreter{Build: id})
	require.NoError(t, r.AddVirtualenv(Virtualenv{Project: "a", Build: id}))

	_, err := r.RemoveInterpreter(id)
	require.True(t, errors.Is(err, errors.ErrCodeDependentVirtualenvs), "got %v", err)
	require.Equal(t, 8, errors.ExitCode(err))

	_, err = r.RemoveVirtualenv("a", id)
	require.NoError(t, err)
	_, err = r.RemoveInterpreter(id)
	require.NoError(t, err)

	_, err = r.RemoveInterpreter(id)
	require.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestProjectValidation(t *testing.T) {
	r := New()
	for _, name := range []string{"", "../etc", "a/b", ".hidden"} {
		_, err := r.EnsureProject(name)
		require.True(t, errors.Is(err, errors.ErrCodeInvalidProject), "name %q: %v", name, err)
	}
	require.Error(t, r.SetDirectory("p", "relative/dir"))
	require.Error(t, r.SetShell("p", "bash; rm -rf /"))
	require.Empty(t, r.ProjectNames(), "failed mutations must not create projects")
}

func TestResolveShell(t *testing.T) {
	r := New()
	require.Equal(t, "/bin/zsh", r.ResolveShell("p", "/bin/zsh"))
	require.Equal(t, "/bin/sh", r.ResolveShell("p", ""))

	require.NoError(t, r.SetShell("", "fish"))
	require.Equal(t, "fish", r.ResolveShell("p", "/bin/zsh"))

	require.NoError(t, r.SetShell("p", "bash"))
	require.Equal(t, "bash", r.ResolveShell("p", "/bin/zsh"))
	require.Equal(t, "fish", r.ResolveShell("other", "/bin/zsh"))
}

func TestReservationToken(t *testing.T) {
	r := New()
	id := build(t, "3.12.2")
	r.Reserve(id, Reservation{Token: "mine"})

	r.Unreserve(id, "theirs")
	_, ok := r.Reservation(id)
	require.True(t, ok, "foreign token must not clear the reservation")

	r.Unreserve(id, "mine")
	_, ok = r.Reservation(id)
	require.False(t, ok)
}

func TestUpdateLockContention(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	s := NewStore(l, WithLockWait(100*time.Millisecond))
	ctx := context.Background()

	inner := make(chan error, 1)
	require.NoError(t, s.Update(ctx, func(*Registry) error {
		inner <- s.Update(ctx, func(*Registry) error { return nil })
		return nil
	}))
	err := <-inner
	require.True(t, errors.Is(err, errors.ErrCodeLockContention), "got %v", err)
}
