package command

import (
	"fmt"
	"strings"
	"time"
)

// maxErrorOutput bounds how much captured output an error message quotes.
const maxErrorOutput = 2048

// CommandTimeoutError reports a command killed after exceeding its timeout.
type CommandTimeoutError struct {
	CommandLine string
	Timeout     time.Duration
	// Stdout and Stderr hold whatever was captured before the kill.
	Stdout string
	Stderr string
}

func (e *CommandTimeoutError) Error() string {
	msg := fmt.Sprintf("command timed out after %s: %s", e.Timeout, e.CommandLine)
	return appendOutput(msg, e.Stdout, e.Stderr)
}

// CommandFailedError reports a command that exited with a non-zero code.
type CommandFailedError struct {
	CommandLine string
	ExitCode    int
	Stdout      string
	Stderr      string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("command exited with code %d: %s", e.ExitCode, e.CommandLine)
	return appendOutput(msg, e.Stdout, e.Stderr)
}

func appendOutput(msg, stdout, stderr string) string {
	if s := tail(stderr); s != "" {
		msg += "\nstderr: " + s
	}
	if s := tail(stdout); s != "" {
		msg += "\nstdout: " + s
	}
	return msg
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorOutput {
		return "..." + s[len(s)-maxErrorOutput:]
	}
	return s
}
