//go:build unix

package cli

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/matzehuels/lilyenv/pkg/activation"
	"github.com/matzehuels/lilyenv/pkg/errors"
)

// spawnShell replaces the process with shell running in the activated
// environment. It only returns on failure.
func spawnShell(logger *log.Logger, shell string, d activation.Descriptor) error {
	path, err := exec.LookPath(shell)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotFound, err, "shell %q", shell)
	}
	if d.Directory != "" {
		if err := os.Chdir(d.Directory); err != nil {
			logger.Warn("cannot enter project directory", "dir", d.Directory, "err", err)
		}
	}
	logger.Debug("exec shell", "path", path, "virtualenv", d.VirtualEnv)
	if err := unix.Exec(path, []string{filepath.Base(shell)}, d.Environ(os.Environ())); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "start %s", path)
	}
	return nil
}
