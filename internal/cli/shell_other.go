//go:build !unix

package cli

import (
	"os"
	"os/exec"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lilyenv/pkg/activation"
	"github.com/matzehuels/lilyenv/pkg/errors"
)

// spawnShell runs shell as a child in the activated environment and
// waits for it to exit.
func spawnShell(logger *log.Logger, shell string, d activation.Descriptor) error {
	cmd := exec.Command(shell)
	cmd.Env = d.Environ(os.Environ())
	cmd.Dir = d.Directory
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	logger.Debug("run shell", "shell", shell, "virtualenv", d.VirtualEnv)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return errors.Wrap(errors.ErrCodeInternal, err, "start %s", shell)
	}
	return nil
}
