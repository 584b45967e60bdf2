package command

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the child in its own process group. Pdeathsig asks the
// kernel to SIGTERM the direct child when the OS thread that forked it
// exits. That covers a crashed host process, but the runtime may also retire
// the thread earlier, so Stop and KillTree remain the real cleanup path.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: unix.SIGTERM,
	}
}
