//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the shell in a new process group and kills the
// whole group on cancellation so grandchildren do not outlive the build.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
