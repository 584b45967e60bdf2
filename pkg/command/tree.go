package command

import (
	"errors"
	"fmt"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// KillTree kills pid and every descendant, children first. Processes that
// are already gone are ignored.
func KillTree(pid int) error {
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, gopsprocess.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	return killTree(p)
}

func killTree(p *gopsprocess.Process) error {
	var errs []error

	children, err := p.Children()
	if err == nil {
		for _, child := range children {
			if err := killTree(child); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := p.Kill(); err != nil {
		if running, _ := p.IsRunning(); running {
			errs = append(errs, fmt.Errorf("kill process %d: %w", p.Pid, err))
		}
	}
	return errors.Join(errs...)
}

// Alive reports whether a process with pid exists and is not a zombie.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	if status, err := p.Status(); err == nil {
		for _, s := range status {
			if s == gopsprocess.Zombie {
				return false
			}
		}
	}
	running, err := p.IsRunning()
	return err == nil && running
}
