package registry

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/lilyenv/pkg/version"
)

// Reconcile brings the registry in line with the directories under
// layout. Interpreter and virtualenv records whose directory is missing or
// incomplete are dropped; complete directories without a record are
// adopted. Reservations older than staleAfter, or whose owning process has
// exited, are discarded. It reports
// whether anything changed.
func (r *Registry) Reconcile(l Layout, now time.Time, staleAfter time.Duration) bool {
	r.init()
	changed := false

	for id, in := range r.Interpreters {
		if !InterpreterComplete(l.InterpreterDir(id)) {
			delete(r.Interpreters, id)
			changed = true
			continue
		}
		if in.Dir != l.InterpreterDir(id) {
			in.Dir = l.InterpreterDir(id)
			r.Interpreters[id] = in
			changed = true
		}
	}
	for _, id := range scanBuilds(l.PythonsDir()) {
		dir := l.InterpreterDir(id)
		if _, ok := r.Interpreters[id]; ok || !InterpreterComplete(dir) {
			continue
		}
		r.Interpreters[id] = Interpreter{Build: id, Dir: dir, InstalledAt: modTime(dir, now)}
		changed = true
	}

	for key, v := range r.Environments {
		if !VirtualenvComplete(l.VirtualenvDir(v.Project, v.Build)) {
			delete(r.Environments, key)
			changed = true
		}
	}
	for _, project := range scanDirs(l.VirtualenvsDir()) {
		for _, id := range scanBuilds(l.ProjectDir(project)) {
			dir := l.VirtualenvDir(project, id)
			if _, ok := r.Virtualenv(project, id); ok || !VirtualenvComplete(dir) {
				continue
			}
			if r.AddVirtualenv(Virtualenv{Project: project, Build: id, Dir: dir, CreatedAt: modTime(dir, now)}) == nil {
				changed = true
			}
		}
	}

	for id, res := range r.Reservations {
		if now.Sub(res.CreatedAt) > staleAfter || !processAlive(res.PID) {
			delete(r.Reservations, id)
			changed = true
		}
	}
	return changed
}

// InterpreterComplete reports whether dir holds a usable interpreter.
func InterpreterComplete(dir string) bool {
	info, err := os.Stat(PythonIn(dir))
	return err == nil && info.Mode().IsRegular()
}

// VirtualenvComplete reports whether dir holds a fully created virtualenv.
func VirtualenvComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil
}

// scanBuilds lists the subdirectories of dir named after a build.
func scanBuilds(dir string) []version.BuildID {
	var ids []version.BuildID
	for _, name := range scanDirs(dir) {
		if id, err := version.ParseBuildID(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// scanDirs lists visible subdirectories of dir.
func scanDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func modTime(path string, fallback time.Time) time.Time {
	if info, err := os.Stat(path); err == nil {
		return info.ModTime().UTC()
	}
	return fallback
}
