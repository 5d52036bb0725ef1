//go:build windows

package execsvc

import (
	"errors"
	"os/exec"
)

// setProcessGroup is a no-op on Windows; job objects would be the
// equivalent of a POSIX process group but are out of scope here since the
// target platform for this service is POSIX.
func setProcessGroup(cmd *exec.Cmd) {}

// terminateProcessGroup kills the direct child only; Windows has no
// portable process-group signal equivalent via os/exec.
func terminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return internalErrorReturnCode
}
