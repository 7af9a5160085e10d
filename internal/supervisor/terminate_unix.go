//go:build unix

package supervisor

import (
	"errors"
	"os"
	"syscall"
)

// terminate sends SIGTERM to the whole process group, falling back to the
// process alone when the group is already gone.
func terminate(process *os.Process) error {
	err := syscall.Kill(-process.Pid, syscall.SIGTERM)
	if err == nil {
		return nil
	}

	if err = process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return nil
}
