//go:build windows

package tasks

import "os/exec"

func configureProcess(*exec.Cmd) {}

func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}
