package command

// Windows has no SIGTERM; both paths end the tree.
func terminateGroup(pid int) error {
	return KillTree(pid)
}

func killGroup(pid int) error {
	return KillTree(pid)
}
