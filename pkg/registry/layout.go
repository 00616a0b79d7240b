package registry

import (
	"path/filepath"

	"github.com/matzehuels/lilyenv/pkg/version"
)

// MarkerFile is written into a virtualenv once it is fully created.
// Directories without it are partial and never recorded.
const MarkerFile = ".lilyenv"

// TempPrefix marks in-progress install directories, which are invisible
// to listings and reconciliation.
const TempPrefix = ".tmp-"

// Layout maps registry entities to paths under the store root.
type Layout struct {
	Root string
}

func (l Layout) RegistryFile() string   { return filepath.Join(l.Root, "registry.json") }
func (l Layout) LockFile() string       { return filepath.Join(l.Root, ".lock") }
func (l Layout) PythonsDir() string     { return filepath.Join(l.Root, "pythons") }
func (l Layout) VirtualenvsDir() string { return filepath.Join(l.Root, "virtualenvs") }
func (l Layout) CacheDir() string       { return filepath.Join(l.Root, "cache") }
func (l Layout) CatalogCacheDir() string {
	return filepath.Join(l.CacheDir(), "catalog")
}
func (l Layout) DownloadsDir() string { return filepath.Join(l.CacheDir(), "downloads") }

// InterpreterDir is the install directory of a build.
func (l Layout) InterpreterDir(id version.BuildID) string {
	return filepath.Join(l.PythonsDir(), id.String())
}

// Python is the interpreter executable inside an install directory.
func (l Layout) Python(id version.BuildID) string {
	return PythonIn(l.InterpreterDir(id))
}

// LibDir holds the interpreter's shared libraries.
func (l Layout) LibDir(id version.BuildID) string {
	return filepath.Join(l.InterpreterDir(id), "python", "lib")
}

// ProjectDir holds all virtualenvs of a project.
func (l Layout) ProjectDir(project string) string {
	return filepath.Join(l.VirtualenvsDir(), project)
}

// VirtualenvDir is the virtualenv of project on build id.
func (l Layout) VirtualenvDir(project string, id version.BuildID) string {
	return filepath.Join(l.ProjectDir(project), id.String())
}

// VirtualenvLock serializes creation of one virtualenv.
func (l Layout) VirtualenvLock(project string, id version.BuildID) string {
	return filepath.Join(l.ProjectDir(project), "."+id.String()+".lock")
}

// PythonIn returns the interpreter executable of an install directory.
func PythonIn(dir string) string {
	return filepath.Join(dir, "python", "bin", "python3")
}
