//go:build windows

package orchestrator

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// interruptGroup kills the process: Windows cannot deliver an interrupt
// to another process group.
func interruptGroup(cmd *exec.Cmd) error {
	return killGroup(cmd)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return os.ErrProcessDone
	}
	return cmd.Process.Kill()
}
