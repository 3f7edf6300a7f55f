// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func interrupt(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func interruptGroup(pid int) error { return interrupt(pid) }

func killGroup(pid int) error { return interrupt(pid) }
