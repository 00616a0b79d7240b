//go:build unix

package registry

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive reports whether pid names a running process. EPERM means
// it exists under another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return true
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
