// Package venv creates virtualenvs by running an interpreter's own venv
// module.
package venv

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// DefaultTimeout bounds a single "python -m venv" run.
const DefaultTimeout = 2 * time.Minute

// Creator runs "<python> -m venv <dir>".
type Creator struct {
	Timeout time.Duration
	// Args are extra arguments passed to the venv module, e.g. "--upgrade-deps".
	Args []string
}

// NewCreator returns a Creator with the default timeout.
func NewCreator() *Creator {
	return &Creator{Timeout: DefaultTimeout}
}

// Create builds a virtualenv at dir using the interpreter at python.
// Failures carry the interpreter's stderr and the VENV_CREATION_FAILED code.
func (c *Creator) Create(ctx context.Context, python, dir string) error {
	if _, err := os.Stat(python); err != nil {
		return errors.Wrap(errors.ErrCodeVenvCreationFailed, err, "interpreter %s is missing", python)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"-m", "venv"}, c.Args...)
	cmd := exec.CommandContext(ctx, python, append(args, dir)...)
	cmd.Env = cleanEnv(os.Environ())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.New(errors.ErrCodeVenvCreationFailed, "python -m venv timed out after %s", timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return errors.New(errors.ErrCodeVenvCreationFailed, "python -m venv %s: %s", dir, msg)
	}
	return nil
}

// cleanEnv drops variables that would make the interpreter pick up another
// environment's settings.
func cleanEnv(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "VIRTUAL_ENV="),
			strings.HasPrefix(kv, "PYTHONHOME="),
			strings.HasPrefix(kv, "PYTHONPATH="):
			continue
		}
		out = append(out, kv)
	}
	return out
}

// SitePackages locates the site-packages directory of the virtualenv at dir.
func SitePackages(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "lib", "python*", "site-packages"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.New(errors.ErrCodeNotFound, "no site-packages directory in %s", dir)
	}
	return matches[0], nil
}
