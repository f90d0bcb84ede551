// Package osutil wraps the platform specific parts of running the agent
// process: process groups, tree termination and exit code extraction.
package osutil

import (
	"errors"
	"os/exec"
)

// ExitCode extracts the exit status from the error returned by
// (*exec.Cmd).Run or Wait. It returns 0 for a nil error and -1 when the
// process never ran or was killed by a signal.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
