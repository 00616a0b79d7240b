//go:build !unix

package filelock

import (
	"os"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

func tryLock(*os.File) (bool, error) {
	return false, errors.New(errors.ErrCodeUnsupported, "file locking is only supported on unix systems")
}

func unlock(*os.File) {}
