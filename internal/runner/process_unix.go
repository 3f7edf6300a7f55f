// SPDX-License-Identifier: MPL-2.0

//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts cmd in its own process group so the whole tree can
// be killed on release.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interrupt(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGINT); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// interruptGroup sends SIGINT to every process in pid's group.
func interruptGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGINT); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

func killGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}
