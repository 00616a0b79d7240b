// Package registry persists installed interpreters, projects and their
// virtualenvs.
//
// The [Registry] aggregate is loaded per invocation, mutated in memory and
// written back atomically by [Store.Update] under an exclusive file lock.
// The directories on disk are the source of truth: [Registry.Reconcile]
// drops records whose directory is gone and adopts complete directories
// that lack a record.
package registry

import (
	"sort"
	"time"

	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// SchemaVersion is the registry file format written by this build.
const SchemaVersion = 1

// Interpreter is an installed build. The record exists iff its directory
// is complete.
type Interpreter struct {
	Build       version.BuildID `json:"build"`
	Dir         string          `json:"dir"`
	InstalledAt time.Time       `json:"installed_at"`
	ReleaseTag  string          `json:"release_tag,omitempty"`
}

// Project groups virtualenvs under a name.
type Project struct {
	Name      string `json:"name"`
	Directory string `json:"directory,omitempty"`
	Shell     string `json:"shell,omitempty"`
}

// Virtualenv is a project's environment on one build.
type Virtualenv struct {
	Project   string          `json:"project"`
	Build     version.BuildID `json:"build"`
	Dir       string          `json:"dir"`
	CreatedAt time.Time       `json:"created_at"`
}

// Key identifies the virtualenv within the registry.
func (v Virtualenv) Key() string { return venvKey(v.Project, v.Build) }

// Reservation marks an install in progress.
type Reservation struct {
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is the persisted aggregate.
type Registry struct {
	Version      int                             `json:"version"`
	Shell        string                          `json:"shell,omitempty"`
	Interpreters map[version.BuildID]Interpreter `json:"interpreters"`
	Projects     map[string]Project              `json:"projects"`
	Environments map[string]Virtualenv           `json:"virtualenvs"` // keyed by Virtualenv.Key
	Reservations map[version.BuildID]Reservation `json:"reservations,omitempty"`
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{Version: SchemaVersion}
	r.init()
	return r
}

func (r *Registry) init() {
	if r.Interpreters == nil {
		r.Interpreters = make(map[version.BuildID]Interpreter)
	}
	if r.Projects == nil {
		r.Projects = make(map[string]Project)
	}
	if r.Environments == nil {
		r.Environments = make(map[string]Virtualenv)
	}
	if r.Reservations == nil {
		r.Reservations = make(map[version.BuildID]Reservation)
	}
}

func venvKey(project string, id version.BuildID) string {
	return project + "/" + id.String()
}

// =============================================================================
// Interpreters
// =============================================================================

// Interpreter returns the record for id.
func (r *Registry) Interpreter(id version.BuildID) (Interpreter, bool) {
	in, ok := r.Interpreters[id]
	return in, ok
}

// AddInterpreter records an installed build and clears its reservation.
func (r *Registry) AddInterpreter(in Interpreter) {
	r.Interpreters[in.Build] = in
	delete(r.Reservations, in.Build)
}

// RemoveInterpreter drops the record for id. It refuses with
// DEPENDENT_VIRTUALENVS while any virtualenv uses the build.
func (r *Registry) RemoveInterpreter(id version.BuildID) (Interpreter, error) {
	in, ok := r.Interpreters[id]
	if !ok {
		return Interpreter{}, errors.New(errors.ErrCodeNotFound, "interpreter %s is not installed", id)
	}
	if deps := r.DependentVirtualenvs(id); len(deps) > 0 {
		names := make([]string, len(deps))
		for i, v := range deps {
			names[i] = v.Project
		}
		return Interpreter{}, errors.New(errors.ErrCodeDependentVirtualenvs,
			"interpreter %s is used by virtualenvs of %v; remove them first", id, names)
	}
	delete(r.Interpreters, id)
	return in, nil
}

// InstalledBuilds returns the installed builds, newest first.
func (r *Registry) InstalledBuilds() []version.BuildID {
	ids := make([]version.BuildID, 0, len(r.Interpreters))
	for id := range r.Interpreters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return version.Less(ids[i], ids[j]) })
	return ids
}

// Reserve records an in-progress install of id.
func (r *Registry) Reserve(id version.BuildID, res Reservation) {
	r.Reservations[id] = res
}

// Reservation returns the live reservation for id, if any.
func (r *Registry) Reservation(id version.BuildID) (Reservation, bool) {
	res, ok := r.Reservations[id]
	return res, ok
}

// Unreserve clears the reservation for id if it still carries token.
func (r *Registry) Unreserve(id version.BuildID, token string) {
	if res, ok := r.Reservations[id]; ok && res.Token == token {
		delete(r.Reservations, id)
	}
}

// =============================================================================
// Projects
// =============================================================================

// Project returns the named project.
func (r *Registry) Project(name string) (Project, bool) {
	p, ok := r.Projects[name]
	return p, ok
}

// EnsureProject returns the named project, creating it if needed.
func (r *Registry) EnsureProject(name string) (Project, error) {
	if err := errors.ValidateProjectName(name); err != nil {
		return Project{}, err
	}
	p, ok := r.Projects[name]
	if !ok {
		p = Project{Name: name}
		r.Projects[name] = p
	}
	return p, nil
}

// ProjectNames returns all project names, ascending.
func (r *Registry) ProjectNames() []string {
	names := make([]string, 0, len(r.Projects))
	for name := range r.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDirectory sets the project's default directory; "" unsets it.
// The project is created if needed.
func (r *Registry) SetDirectory(name, dir string) error {
	if dir != "" {
		if err := errors.ValidateDirectory(dir); err != nil {
			return err
		}
	}
	p, err := r.EnsureProject(name)
	if err != nil {
		return err
	}
	p.Directory = dir
	r.Projects[name] = p
	return nil
}

// SetShell sets the shell for a project, or the global default when name
// is empty. An empty shell clears the setting.
func (r *Registry) SetShell(name, shell string) error {
	if shell != "" {
		if err := errors.ValidateShell(shell); err != nil {
			return err
		}
	}
	if name == "" {
		r.Shell = shell
		return nil
	}
	p, err := r.EnsureProject(name)
	if err != nil {
		return err
	}
	p.Shell = shell
	r.Projects[name] = p
	return nil
}

// ResolveShell picks the shell for project: project override, then the
// global default, then env (usually $SHELL), then /bin/sh.
func (r *Registry) ResolveShell(project, env string) string {
	if p, ok := r.Projects[project]; ok && p.Shell != "" {
		return p.Shell
	}
	if r.Shell != "" {
		return r.Shell
	}
	if env != "" {
		return env
	}
	return "/bin/sh"
}

// RemoveProject deletes a project and returns the virtualenvs it owned.
func (r *Registry) RemoveProject(name string) ([]Virtualenv, error) {
	if _, ok := r.Projects[name]; !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "project %q does not exist", name)
	}
	removed := r.Virtualenvs(name)
	for _, v := range removed {
		delete(r.Environments, v.Key())
	}
	delete(r.Projects, name)
	return removed, nil
}

// =============================================================================
// Virtualenvs
// =============================================================================

// AddVirtualenv records a complete virtualenv, creating its project.
func (r *Registry) AddVirtualenv(v Virtualenv) error {
	if _, err := r.EnsureProject(v.Project); err != nil {
		return err
	}
	r.Environments[v.Key()] = v
	return nil
}

// Virtualenv returns the record for (project, id).
func (r *Registry) Virtualenv(project string, id version.BuildID) (Virtualenv, bool) {
	v, ok := r.Environments[venvKey(project, id)]
	return v, ok
}

// RemoveVirtualenv drops the record for (project, id).
func (r *Registry) RemoveVirtualenv(project string, id version.BuildID) (Virtualenv, error) {
	v, ok := r.Environments[venvKey(project, id)]
	if !ok {
		return Virtualenv{}, errors.New(errors.ErrCodeNotFound, "project %q has no virtualenv for %s", project, id)
	}
	delete(r.Environments, v.Key())
	return v, nil
}

// Virtualenvs lists virtualenvs grouped by project name ascending, each
// project's entries newest build first. An empty project lists all.
func (r *Registry) Virtualenvs(project string) []Virtualenv {
	var out []Virtualenv
	for _, v := range r.Environments {
		if project == "" || v.Project == project {
			out = append(out, v)
		}
	}
	sortVirtualenvs(out)
	return out
}

// ProjectBuilds returns the builds project has virtualenvs for, newest first.
func (r *Registry) ProjectBuilds(project string) []version.BuildID {
	venvs := r.Virtualenvs(project)
	ids := make([]version.BuildID, len(venvs))
	for i, v := range venvs {
		ids[i] = v.Build
	}
	return ids
}

// DependentVirtualenvs returns the virtualenvs built on id.
func (r *Registry) DependentVirtualenvs(id version.BuildID) []Virtualenv {
	var out []Virtualenv
	for _, v := range r.Environments {
		if v.Build == id {
			out = append(out, v)
		}
	}
	sortVirtualenvs(out)
	return out
}

func sortVirtualenvs(vs []Virtualenv) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Project != vs[j].Project {
			return vs[i].Project < vs[j].Project
		}
		return version.Less(vs[i].Build, vs[j].Build)
	})
}
