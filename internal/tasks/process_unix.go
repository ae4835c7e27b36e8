//go:build !windows

package tasks

import (
	"os/exec"
	"syscall"
)

// configureProcess runs the shell in its own process group so a kill
// reaches every child it spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

func shellCommand(command string) (string, []string) {
	return "sh", []string{"-c", command}
}
