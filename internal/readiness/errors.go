package readiness

import (
	"fmt"
	"strings"
	"time"
)

// DependencyMissingError reports that the runtime the broker needs is absent,
// not runnable or too old.
type DependencyMissingError struct {
	Dependency string
	// Required is the minimum acceptable version, if any.
	Required string
	// Found is the version reported by the runtime, if it ran.
	Found string
	Err   error
}

func (e *DependencyMissingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dependency %s unavailable", e.Dependency)
	if e.Found != "" {
		fmt.Fprintf(&b, ": found %s", e.Found)
	}
	if e.Required != "" {
		fmt.Fprintf(&b, ", requires %s or newer", e.Required)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DependencyMissingError) Unwrap() error {
	return e.Err
}

// StartupTimeoutError reports a broker that did not become ready in time.
// The process has been killed by the time this error is returned.
type StartupTimeoutError struct {
	Timeout time.Duration
	// LastErr is the most recent status probe failure, if any.
	LastErr error
	// Output is the broker's captured stdout and stderr.
	Output string
}

func (e *StartupTimeoutError) Error() string {
	msg := fmt.Sprintf("broker not ready after %s", e.Timeout)
	if e.LastErr != nil {
		msg += ": last status check: " + e.LastErr.Error()
	}
	return msg
}

func (e *StartupTimeoutError) Unwrap() error {
	return e.LastErr
}

// StartupFailedError reports a broker process that exited before it became
// ready.
type StartupFailedError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *StartupFailedError) Error() string {
	msg := fmt.Sprintf("broker exited during startup with code %d", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		if len(out) > 2048 {
			out = "..." + out[len(out)-2048:]
		}
		msg += "\noutput: " + out
	}
	return msg
}

func (e *StartupFailedError) Unwrap() error {
	return e.Err
}
