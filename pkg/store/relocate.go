package store

import (
	"os"
	"path/filepath"
	"strings"
)

// normalizeLayout flattens "full" archives, which ship the install tree
// under python/install next to build artifacts, into the install_only
// layout rooted at python/.
func normalizeLayout(dir string) error {
	python := filepath.Join(dir, "python")
	install := filepath.Join(python, "install")
	if _, err := os.Stat(install); err != nil {
		return nil
	}
	moved := filepath.Join(dir, "install")
	if err := os.Rename(install, moved); err != nil {
		return err
	}
	if err := os.RemoveAll(python); err != nil {
		return err
	}
	return os.Rename(moved, python)
}

// fixupSysconfig rewrites the /install build prefix to root in the
// sysconfig data module and pkg-config files under dir. root is where
// dir/python will live once committed.
func fixupSysconfig(dir, root string) error {
	lib := filepath.Join(dir, "python", "lib")

	matches, err := filepath.Glob(filepath.Join(lib, "python*", "_sysconfigdata_*.py"))
	if err != nil {
		return err
	}
	sysconfig := strings.NewReplacer(
		"'/install", "'"+root,
		" /install", " "+root,
		"=/install", "="+root,
	)
	for _, path := range matches {
		if err := rewrite(path, sysconfig); err != nil {
			return err
		}
	}

	pc, err := os.ReadDir(filepath.Join(lib, "pkgconfig"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	pkgconfig := strings.NewReplacer("=/install", "="+root)
	for _, e := range pc {
		if !e.Type().IsRegular() {
			continue
		}
		if err := rewrite(filepath.Join(lib, "pkgconfig", e.Name()), pkgconfig); err != nil {
			return err
		}
	}
	return nil
}

func rewrite(path string, r *strings.Replacer) error {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := r.Replace(string(data))
	if out == string(data) {
		return nil
	}
	return os.WriteFile(path, []byte(out), info.Mode().Perm())
}
