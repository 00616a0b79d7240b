// Package activation describes the environment of an activated virtualenv.
//
// [Build] is pure: it only computes paths and variables. Spawning the
// shell is left to the caller.
package activation

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// TerminfoDirs lets curses programs in the standalone builds find the
// system terminfo database.
const TerminfoDirs = "/etc/terminfo:/lib/terminfo:/usr/share/terminfo"

// Descriptor is everything needed to enter a virtualenv.
type Descriptor struct {
	Project     string          `json:"project" yaml:"project"`
	Build       version.BuildID `json:"build" yaml:"build"`
	VirtualEnv  string          `json:"virtual_env" yaml:"virtual_env"`
	BinDir      string          `json:"bin_dir" yaml:"bin_dir"`
	LibraryPath string          `json:"library_path" yaml:"library_path"`
	Prompt      string          `json:"prompt" yaml:"prompt"`
	Directory   string          `json:"directory,omitempty" yaml:"directory,omitempty"`
}

// Build assembles the descriptor for venv on interpreter in, owned by project.
func Build(venv registry.Virtualenv, in registry.Interpreter, project registry.Project) Descriptor {
	return Descriptor{
		Project:     venv.Project,
		Build:       venv.Build,
		VirtualEnv:  venv.Dir,
		BinDir:      filepath.Join(venv.Dir, "bin"),
		LibraryPath: filepath.Join(in.Dir, "python", "lib"),
		Prompt:      venv.Project + " (" + venv.Build.String() + ") ",
		Directory:   project.Directory,
	}
}

// LibraryPathVar is the dynamic loader search variable for the platform.
func LibraryPathVar() string {
	if runtime.GOOS == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// Variables returns the variables the descriptor sets, given the current PATH.
func (d Descriptor) Variables(path string) map[string]string {
	if path == "" {
		path = d.BinDir
	} else {
		path = d.BinDir + string(filepath.ListSeparator) + path
	}
	return map[string]string{
		"VIRTUAL_ENV":        d.VirtualEnv,
		"VIRTUAL_ENV_PROMPT": d.Prompt,
		"PATH":               path,
		"TERMINFO_DIRS":      TerminfoDirs,
		LibraryPathVar():     d.LibraryPath,
	}
}

// Environ returns base with the descriptor's variables applied. Existing
// values are replaced; PATH is prepended to, and PYTHONHOME is dropped.
func (d Descriptor) Environ(base []string) []string {
	var path string
	for _, kv := range base {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = v
		}
	}
	vars := d.Variables(path)

	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := vars[key]; overridden || key == "PYTHONHOME" {
			continue
		}
		out = append(out, kv)
	}
	for _, key := range []string{"PATH", "VIRTUAL_ENV", "VIRTUAL_ENV_PROMPT", LibraryPathVar(), "TERMINFO_DIRS"} {
		out = append(out, key+"="+vars[key])
	}
	return out
}

// Exports renders the variables as POSIX shell export statements, for
// "activate --env" used with eval.
func (d Descriptor) Exports(path string) string {
	vars := d.Variables(path)
	var b strings.Builder
	for _, key := range []string{"VIRTUAL_ENV", "VIRTUAL_ENV_PROMPT", "PATH", LibraryPathVar(), "TERMINFO_DIRS"} {
		b.WriteString("export " + key + "=" + shellQuote(vars[key]) + "\n")
	}
	if d.Directory != "" {
		b.WriteString("cd " + shellQuote(d.Directory) + "\n")
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
