//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the interpreter in its own process group so
// that cancellation kills every process it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
