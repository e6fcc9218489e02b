//go:build !unix

// Author: momentics <momentics@gmail.com>

package asyncfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/momentics/hioload-echo/api"
)

// ErrLocked is returned by TryLock while another description holds the lock.
var ErrLocked = errors.New("asyncfile: file is locked")

func lockFile(*os.File, bool) error {
	return fmt.Errorf("asyncfile: file locking: %w", api.ErrNotSupported)
}

func unlockFile(*os.File) error {
	return fmt.Errorf("asyncfile: file locking: %w", api.ErrNotSupported)
}
