package readiness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
)

// ErlangDependency names the runtime in DependencyMissingError.
const ErlangDependency = "erlang"

// erlangVersionEval prints the OTP release, e.g. "23" or "R16B03".
const erlangVersionEval = "erlang:display(erlang:system_info(otp_release)), halt()."

var otpReleaseRegex = regexp.MustCompile(`"?R?(\d+)`)

// ErlangCheck verifies that the Erlang runtime is installed and new enough.
type ErlangCheck struct {
	Executor command.Executor
	// Command is the erl executable, looked up on PATH when not a path.
	Command string
	// Minimum is the oldest acceptable OTP release such as "23.2". Empty
	// only checks that the runtime starts.
	Minimum string
	Timeout time.Duration
	Env     map[string]string
}

// Run executes the check and returns the detected OTP major release.
func (c ErlangCheck) Run(ctx context.Context) (string, error) {
	res, err := c.Executor.Run(ctx, command.Command{
		Path:    c.Command,
		Args:    []string{"-noshell", "-eval", erlangVersionEval},
		Env:     c.Env,
		Timeout: c.Timeout,
	})
	if err != nil {
		return "", &DependencyMissingError{Dependency: ErlangDependency, Required: c.Minimum, Err: err}
	}

	found, err := ParseOTPRelease(res.Stdout)
	if err != nil {
		return "", &DependencyMissingError{Dependency: ErlangDependency, Required: c.Minimum, Err: err}
	}

	if c.Minimum != "" && !SatisfiesMinimum(found, c.Minimum) {
		return found, &DependencyMissingError{Dependency: ErlangDependency, Required: c.Minimum, Found: found}
	}
	return found, nil
}

// ParseOTPRelease extracts the OTP major release from erl output.
func ParseOTPRelease(output string) (string, error) {
	m := otpReleaseRegex.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return "", fmt.Errorf("no OTP release found in output %q", strings.TrimSpace(output))
	}
	return strings.TrimLeft(m[1], "0"), nil
}

// SatisfiesMinimum reports whether OTP major release found is at least the
// major component of minimum ("23.2", "R16B03"). erl only reports the major
// release.
func SatisfiesMinimum(found, minimum string) bool {
	required, err := ParseOTPRelease(minimum)
	if err != nil {
		return false
	}
	f, m := "v"+found, "v"+required
	if !semver.IsValid(f) || !semver.IsValid(m) {
		return false
	}
	return semver.Compare(f, m) >= 0
}
