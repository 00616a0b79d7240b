package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/filelock"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// =============================================================================
// Upgrade
// =============================================================================

// UpgradeOptions configures Upgrade.
type UpgradeOptions struct {
	// Project limits virtualenv migration to one project. Empty migrates
	// every project.
	Project string
	// KeepOld leaves superseded virtualenvs and interpreters in place.
	KeepOld bool
}

// Migration records one virtualenv moved to the new build.
type Migration struct {
	Project string
	From    version.BuildID
	To      version.BuildID
	Removed bool // whether the old virtualenv was deleted
}

// UpgradeResult describes what Upgrade did.
type UpgradeResult struct {
	Series    string
	From      version.BuildID // zero if nothing of the series was installed
	To        version.BuildID
	UpToDate  bool
	Installed bool
	Migrated  []Migration
	Removed   []version.BuildID // interpreters deleted after migration
	Warnings  []string
}

// Upgrade moves a major.minor series to its newest bugfix release.
//
// The newest build is installed unless present, and each virtualenv of the
// series on an older build gets a fresh virtualenv on the new one. The
// series is up to date only when the newest build is installed and no
// virtualenv in scope lags behind it. Packages are not
// carried over; a warning is recorded per migrated virtualenv. Unless
// opts.KeepOld is set, the old virtualenvs are removed, followed by old
// interpreters of the series that nothing depends on anymore.
func (m *Machine) Upgrade(ctx context.Context, spec version.Spec, opts UpgradeOptions) (*UpgradeResult, error) {
	if spec.Minor == version.Any || spec.HasPatch() {
		return nil, errors.New(errors.ErrCodeInvalidVersion, "upgrade takes a major.minor series, got %s", spec)
	}
	if opts.Project != "" {
		if err := errors.ValidateProjectName(opts.Project); err != nil {
			return nil, err
		}
	}

	r, err := m.registry().Load()
	if err != nil {
		return nil, err
	}
	res := &UpgradeResult{Series: spec.String()}
	current, _ := catalog.Resolve(r.InstalledBuilds(), spec, true)
	res.From = current

	target := spec
	if !current.IsZero() {
		target = catalog.UpgradeSpec(current)
	}
	cat, err := m.fetchCatalog(ctx)
	if err != nil {
		return nil, &StageError{State: ResolutionFailed, Err: err}
	}
	e, err := cat.Resolve(target)
	if err != nil && !current.IsZero() && errors.Is(err, errors.ErrCodeNotFound) {
		// A pre-release series without a stable release yet.
		e, err = cat.Resolve(spec)
	}
	if err != nil {
		return nil, &StageError{State: ResolutionFailed, Err: err}
	}
	to := e.Build
	if !current.IsZero() && version.Compare(current, to) > 0 {
		to = current
	}
	res.To = to

	// Virtualenvs in scope still on an older build of the series. Other
	// projects may lag behind an interpreter that is already installed.
	// Projects that already have one on the target (KeepOld) are done.
	var stale []registry.Virtualenv
	for _, v := range r.Virtualenvs(opts.Project) {
		if !sameSeries(v.Build, to) || version.Compare(v.Build, to) >= 0 {
			continue
		}
		if _, ok := r.Virtualenv(v.Project, to); ok {
			continue
		}
		stale = append(stale, v)
	}
	if _, ok := r.Interpreter(to); ok && len(stale) == 0 {
		res.UpToDate = true
		return res, nil
	}
	if version.Compare(res.From, to) >= 0 {
		res.From = version.BuildID{}
		for _, v := range stale {
			if res.From.IsZero() || version.Compare(v.Build, res.From) > 0 {
				res.From = v.Build
			}
		}
	}

	in, installed, err := m.Store.EnsureInstalled(ctx, to, cat)
	if err != nil {
		return res, &StageError{State: DownloadFailed, Err: err}
	}
	res.Installed = installed

	for _, old := range stale {
		if _, _, err := m.ensureVirtualenv(ctx, old.Project, in); err != nil {
			return res, &StageError{State: VenvCreationFailed, Err: err}
		}
		mig := Migration{Project: old.Project, From: old.Build, To: to}
		if !opts.KeepOld {
			if err := m.removeVirtualenv(ctx, old.Project, old.Build); err != nil {
				return res, err
			}
			mig.Removed = true
		}
		res.Migrated = append(res.Migrated, mig)
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"packages of %s were not carried over from %s to %s; reinstall them", old.Project, old.Build, to))
	}

	if !opts.KeepOld {
		removed, err := m.pruneSeries(ctx, to)
		res.Removed = removed
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// pruneSeries removes interpreters of keep's series older than keep that
// no virtualenv depends on.
func (m *Machine) pruneSeries(ctx context.Context, keep version.BuildID) ([]version.BuildID, error) {
	r, err := m.registry().Load()
	if err != nil {
		return nil, err
	}
	var removed []version.BuildID
	for _, id := range r.InstalledBuilds() {
		if !sameSeries(id, keep) || version.Compare(id, keep) >= 0 {
			continue
		}
		if len(r.DependentVirtualenvs(id)) > 0 {
			m.Logger.Debug("keeping interpreter with dependents", "build", id)
			continue
		}
		if err := m.Store.Remove(ctx, id); err != nil {
			if errors.Is(err, errors.ErrCodeDependentVirtualenvs) || errors.Is(err, errors.ErrCodeNotFound) {
				continue
			}
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// sameSeries reports whether a and b share major, minor and variant.
func sameSeries(a, b version.BuildID) bool {
	return a.Major == b.Major && a.Minor == b.Minor && a.Variant == b.Variant
}

// =============================================================================
// Removal
// =============================================================================

// RemoveVirtualenv deletes the project's virtualenv matching spec. A
// partial spec must match exactly one of the project's virtualenvs.
func (m *Machine) RemoveVirtualenv(ctx context.Context, project string, spec version.Spec) (registry.Virtualenv, error) {
	if err := errors.ValidateProjectName(project); err != nil {
		return registry.Virtualenv{}, err
	}
	r, err := m.registry().Load()
	if err != nil {
		return registry.Virtualenv{}, err
	}
	if _, ok := r.Project(project); !ok {
		return registry.Virtualenv{}, errors.New(errors.ErrCodeNotFound, "project %q does not exist", project)
	}
	id, err := catalog.Resolve(r.ProjectBuilds(project), spec, false)
	if err != nil {
		return registry.Virtualenv{}, err
	}
	v, _ := r.Virtualenv(project, id)
	if err := m.removeVirtualenv(ctx, project, id); err != nil {
		return registry.Virtualenv{}, err
	}
	return v, nil
}

func (m *Machine) removeVirtualenv(ctx context.Context, project string, id version.BuildID) error {
	l := m.layout()
	lock, err := filelock.Acquire(ctx, l.VirtualenvLock(project, id), m.registry().LockWait())
	if err != nil {
		return err
	}
	defer lock.Release()

	return m.registry().Update(ctx, func(r *registry.Registry) error {
		v, err := r.RemoveVirtualenv(project, id)
		if err != nil {
			return err
		}
		if err := unmarkAndRemove(v.Dir); err != nil {
			return fmt.Errorf("remove %s: %w", v.Dir, err)
		}
		m.Logger.Info("removed virtualenv", "project", project, "build", id)
		return nil
	})
}

// RemoveProject deletes a project with all its virtualenvs. The
// per-virtualenv lock files stay behind so that a concurrent activation
// holding one keeps excluding others.
func (m *Machine) RemoveProject(ctx context.Context, project string) ([]registry.Virtualenv, error) {
	if err := errors.ValidateProjectName(project); err != nil {
		return nil, err
	}
	r, err := m.registry().Load()
	if err != nil {
		return nil, err
	}
	if _, ok := r.Project(project); !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "project %q does not exist", project)
	}

	l := m.layout()
	for _, v := range r.Virtualenvs(project) {
		lock, err := filelock.Acquire(ctx, l.VirtualenvLock(project, v.Build), m.registry().LockWait())
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	var removed []registry.Virtualenv
	err = m.registry().Update(ctx, func(r *registry.Registry) error {
		venvs, err := r.RemoveProject(project)
		if err != nil {
			return err
		}
		for _, v := range venvs {
			if err := unmarkAndRemove(v.Dir); err != nil {
				return fmt.Errorf("remove %s: %w", v.Dir, err)
			}
		}
		removed = venvs
		return removeProjectLeftovers(l.ProjectDir(project))
	})
	if err != nil {
		return nil, err
	}
	m.Logger.Info("removed project", "project", project, "virtualenvs", len(removed))
	return removed, nil
}

// removeProjectLeftovers deletes everything in dir except virtualenv
// lock files.
func removeProjectLeftovers(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if isVirtualenvLock(e) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isVirtualenvLock(e os.DirEntry) bool {
	name := e.Name()
	return !e.IsDir() && strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".lock")
}

// RemoveInterpreter deletes the installed interpreter matching spec. It
// refuses while virtualenvs depend on it.
func (m *Machine) RemoveInterpreter(ctx context.Context, spec version.Spec) (version.BuildID, error) {
	r, err := m.registry().Load()
	if err != nil {
		return version.BuildID{}, err
	}
	id, err := catalog.Resolve(r.InstalledBuilds(), spec, false)
	if err != nil {
		return version.BuildID{}, err
	}
	if err := m.Store.Remove(ctx, id); err != nil {
		return version.BuildID{}, err
	}
	return id, nil
}

// unmarkAndRemove deletes the completion marker before the tree, so an
// interrupted removal is never adopted back.
func unmarkAndRemove(dir string) error {
	if err := os.Remove(filepath.Join(dir, registry.MarkerFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.RemoveAll(dir)
}
