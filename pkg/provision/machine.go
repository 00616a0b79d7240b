// Package provision drives a project from "nothing installed" to "virtualenv
// ready to activate".
//
// # States
//
// Every request walks the same chain and records the states it reaches:
//
//	Requested → Resolved → InterpreterReady → VirtualenvReady → Activated
//
// with the terminal failures ResolutionFailed, DownloadFailed and
// VenvCreationFailed. Each transition is idempotent: work already done by
// an earlier (or concurrent) run is reused, and nothing partial is ever
// recorded in the registry.
//
// # Resolution
//
// A version spec is resolved, in order, against the project's existing
// virtualenvs, the installed interpreters (for concrete specs, or always
// when offline) and finally the release catalog.
package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lilyenv/pkg/activation"
	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/filelock"
	"github.com/matzehuels/lilyenv/pkg/observability"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/store"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// CatalogSource provides the catalog of downloadable builds.
type CatalogSource interface {
	Fetch(ctx context.Context, refresh bool) (*catalog.Catalog, error)
}

// VenvCreator creates a virtualenv at dir with the interpreter at python.
type VenvCreator interface {
	Create(ctx context.Context, python, dir string) error
}

// Machine runs provisioning requests against one store.
type Machine struct {
	Store   *store.Store
	Catalog CatalogSource
	Venv    VenvCreator
	Logger  *log.Logger

	// Offline restricts resolution to installed interpreters.
	Offline bool
	// Refresh bypasses the catalog cache.
	Refresh bool
}

// New creates a Machine. If logger is nil, the default logger is used.
func New(st *store.Store, src CatalogSource, vc VenvCreator, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.Default()
	}
	return &Machine{Store: st, Catalog: src, Venv: vc, Logger: logger}
}

func (m *Machine) registry() *registry.Store { return m.Store.Registry }
func (m *Machine) layout() registry.Layout   { return m.Store.Registry.Layout() }

// Activate runs the full chain and returns the activation descriptor.
func (m *Machine) Activate(ctx context.Context, project string, spec version.Spec) (*Run, error) {
	run, err := m.Virtualenv(ctx, project, spec)
	if err != nil {
		return run, err
	}

	r, err := m.registry().Load()
	if err != nil {
		return run, err
	}
	p, _ := r.Project(project)
	d := activation.Build(run.Virtualenv, run.Interpreter, p)
	run.Descriptor = &d
	run.to(ctx, m.Logger, Activated)
	return run, nil
}

// Virtualenv runs the chain up to VirtualenvReady.
func (m *Machine) Virtualenv(ctx context.Context, project string, spec version.Spec) (*Run, error) {
	if err := errors.ValidateProjectName(project); err != nil {
		return nil, err
	}
	run := &Run{Project: project, Spec: spec}
	run.to(ctx, m.Logger, Requested)

	cat, err := m.resolveForProject(ctx, run)
	if err != nil {
		return run, run.fail(ctx, m.Logger, ResolutionFailed, err)
	}
	run.to(ctx, m.Logger, Resolved)

	if err := m.ensureInterpreter(ctx, run, cat); err != nil {
		return run, run.fail(ctx, m.Logger, DownloadFailed, err)
	}
	run.to(ctx, m.Logger, InterpreterReady)

	v, created, err := m.ensureVirtualenv(ctx, project, run.Interpreter)
	if err != nil {
		return run, run.fail(ctx, m.Logger, VenvCreationFailed, err)
	}
	run.Virtualenv, run.Created = v, created
	run.to(ctx, m.Logger, VirtualenvReady)
	return run, nil
}

// Download runs the chain up to InterpreterReady.
func (m *Machine) Download(ctx context.Context, spec version.Spec) (*Run, error) {
	run := &Run{Spec: spec}
	run.to(ctx, m.Logger, Requested)

	r, err := m.registry().Load()
	if err != nil {
		return run, run.fail(ctx, m.Logger, ResolutionFailed, err)
	}
	cat, err := m.resolveInstalledOrCatalog(ctx, run, r)
	if err != nil {
		return run, run.fail(ctx, m.Logger, ResolutionFailed, err)
	}
	run.to(ctx, m.Logger, Resolved)

	if err := m.ensureInterpreter(ctx, run, cat); err != nil {
		return run, run.fail(ctx, m.Logger, DownloadFailed, err)
	}
	run.to(ctx, m.Logger, InterpreterReady)
	return run, nil
}

// resolveForProject resolves run.Spec, preferring the project's existing
// virtualenvs. It returns the catalog if one was fetched.
func (m *Machine) resolveForProject(ctx context.Context, run *Run) (*catalog.Catalog, error) {
	r, err := m.registry().Load()
	if err != nil {
		return nil, err
	}
	if id, err := catalog.Resolve(r.ProjectBuilds(run.Project), run.Spec, true); err == nil {
		m.Logger.Debug("reusing virtualenv", "project", run.Project, "build", id)
		run.Build = id
		return nil, nil
	}
	return m.resolveInstalledOrCatalog(ctx, run, r)
}

func (m *Machine) resolveInstalledOrCatalog(ctx context.Context, run *Run, r *registry.Registry) (*catalog.Catalog, error) {
	installed := r.InstalledBuilds()
	if m.Offline || run.Spec.Concrete() {
		id, err := catalog.Resolve(installed, run.Spec, true)
		if err == nil {
			run.Build = id
			return nil, nil
		}
		if m.Offline {
			return nil, errors.Wrap(errors.GetCode(err), err, "offline")
		}
	}

	cat, err := m.fetchCatalog(ctx)
	if err != nil {
		return nil, err
	}
	e, err := cat.Resolve(run.Spec)
	if err != nil {
		return nil, err
	}
	run.Build = e.Build
	return cat, nil
}

func (m *Machine) fetchCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if m.Offline {
		return nil, errors.New(errors.ErrCodeNotFound, "offline: no installed interpreter matches")
	}
	if m.Catalog == nil {
		return nil, errors.New(errors.ErrCodeInternal, "no catalog source configured")
	}
	return m.Catalog.Fetch(ctx, m.Refresh)
}

// ensureInterpreter installs run.Build if needed. cat may be nil, in which
// case it is fetched only when a download is required.
func (m *Machine) ensureInterpreter(ctx context.Context, run *Run, cat *catalog.Catalog) error {
	in, ok, err := m.Store.Installed(run.Build)
	if err != nil {
		return err
	}
	if ok {
		run.Interpreter = in
		return nil
	}
	if cat == nil {
		if cat, err = m.fetchCatalog(ctx); err != nil {
			return err
		}
	}
	in, installed, err := m.Store.EnsureInstalled(ctx, run.Build, cat)
	if err != nil {
		return err
	}
	run.Interpreter, run.Installed = in, installed
	return nil
}

// ensureVirtualenv makes the (project, build) virtualenv exist and be
// recorded. Creation happens under a per-virtualenv lock so concurrent
// runs create it once.
func (m *Machine) ensureVirtualenv(ctx context.Context, project string, in registry.Interpreter) (registry.Virtualenv, bool, error) {
	l := m.layout()
	id := in.Build

	r, err := m.registry().Load()
	if err != nil {
		return registry.Virtualenv{}, false, err
	}
	if v, ok := r.Virtualenv(project, id); ok {
		return v, false, nil
	}

	lock, err := filelock.Acquire(ctx, l.VirtualenvLock(project, id), m.registry().LockWait())
	if err != nil {
		return registry.Virtualenv{}, false, err
	}
	defer lock.Release()

	dir := l.VirtualenvDir(project, id)
	created := false
	if !registry.VirtualenvComplete(dir) {
		if err := m.createVirtualenv(ctx, project, in, dir); err != nil {
			return registry.Virtualenv{}, false, err
		}
		created = true
	}

	v := registry.Virtualenv{Project: project, Build: id, Dir: dir, CreatedAt: m.registry().Now()}
	err = m.registry().Update(ctx, func(r *registry.Registry) error {
		if existing, ok := r.Virtualenv(project, id); ok {
			v = existing
			return nil
		}
		return r.AddVirtualenv(v)
	})
	if err != nil {
		return registry.Virtualenv{}, false, err
	}
	return v, created, nil
}

func (m *Machine) createVirtualenv(ctx context.Context, project string, in registry.Interpreter, dir string) (err error) {
	start := time.Now()
	defer func() {
		observability.Provision().OnVirtualenvCreate(ctx, project, in.Build.String(), time.Since(start), err)
	}()

	// Leftovers of an interrupted creation.
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(errors.ErrCodeVenvCreationFailed, err, "clear partial virtualenv")
	}

	m.Logger.Info("creating virtualenv", "project", project, "build", in.Build)
	if err := m.Venv.Create(ctx, registry.PythonIn(in.Dir), dir); err != nil {
		os.RemoveAll(dir)
		if errors.GetCode(err) == "" {
			return errors.Wrap(errors.ErrCodeVenvCreationFailed, err, "create virtualenv")
		}
		return err
	}
	if err := writeMarker(dir, in.Build, m.registry().Now()); err != nil {
		os.RemoveAll(dir)
		return errors.Wrap(errors.ErrCodeVenvCreationFailed, err, "mark virtualenv complete")
	}
	return nil
}

type marker struct {
	Build     version.BuildID `json:"build"`
	CreatedAt time.Time       `json:"created_at"`
}

func writeMarker(dir string, id version.BuildID, now time.Time) error {
	data, err := json.Marshal(marker{Build: id, CreatedAt: now})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, registry.MarkerFile), data, 0o644)
}
