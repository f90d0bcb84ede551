//go:build unix

package osutil

import (
	"os/exec"
	"syscall"
	"time"
)

// GracefulShutdownDelay is how long the agent process group gets between
// SIGTERM and SIGKILL once its context is cancelled.
const GracefulShutdownDelay = 2 * time.Second

// SetProcessGroup runs cmd in its own process group so tool servers spawned
// by the agent can be terminated together with it.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// SetProcessGroupKill makes context cancellation send SIGTERM to the whole
// process group, then SIGKILL if it is still alive after
// GracefulShutdownDelay. Must be called after SetProcessGroup and before
// cmd.Start().
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			return syscall.Kill(pgid, syscall.SIGKILL)
		}
		go func() {
			time.Sleep(GracefulShutdownDelay)
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}()
		return nil
	}
	cmd.WaitDelay = GracefulShutdownDelay + time.Second
}
