//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the shell in its own process group so that
// cancellation kills the shell and every process it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
