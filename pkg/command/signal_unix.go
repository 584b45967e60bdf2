//go:build unix

package command

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// terminateGroup sends SIGTERM to the process group led by pid.
func terminateGroup(pid int) error {
	return signalGroup(pid, unix.SIGTERM)
}

// killGroup sends SIGKILL to the process group led by pid.
func killGroup(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(-pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("send %v to process group %d: %w", sig, pid, err)
	}
	return nil
}
