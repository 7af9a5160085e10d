package supervisor

import (
	"errors"
	"os"
)

// terminate kills the process; Windows has no portable graceful signal for console-less children.
func terminate(process *os.Process) error {
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return nil
}
