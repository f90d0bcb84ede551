//go:build windows

package osutil

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// GracefulShutdownDelay is kept for API parity with unix; Windows processes
// are killed directly.
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup starts cmd in a new process group.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// SetProcessGroupKill terminates the main process on cancellation. Children
// may outlive it since Windows has no unix-style process groups.
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Kill)
	}
	cmd.WaitDelay = GracefulShutdownDelay
}
