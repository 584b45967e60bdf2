package readiness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

const defaultKillWait = 5 * time.Second

// Probe checks once whether the node is running. It returns nil when it is.
type Probe func(ctx context.Context) error

// Options configures a Detector.
type Options struct {
	// Timeout is the overall readiness deadline. Zero fails immediately.
	Timeout time.Duration
	// Interval is the pause between probes.
	Interval time.Duration
	Clock    Clock
	Logger   log.Logger
	// KillWait bounds how long a killed process may take to be reaped.
	KillWait time.Duration
}

// Detector runs the readiness state machine for one launch.
type Detector struct {
	opts   Options
	logger log.Logger

	mu    sync.Mutex
	state State
}

// NewDetector creates a detector in the LAUNCHING state.
func NewDetector(opts Options) *Detector {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.KillWait <= 0 {
		opts.KillWait = defaultKillWait
	}
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	return &Detector{
		opts:   opts,
		logger: log.OrNoop(opts.Logger),
		state:  StateLaunching,
	}
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) transition(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()
	d.logger.Debug("readiness state changed", "from", from.String(), "to", to.String())
}

// Await blocks until h is ready, the deadline passes, h exits or ctx ends.
// logReady may be nil. Every non-nil return has already killed h.
func (d *Detector) Await(ctx context.Context, h command.Handle, probe Probe, logReady <-chan struct{}) error {
	d.transition(StatePolling)

	if d.opts.Timeout <= 0 {
		return d.timedOut(h, nil)
	}

	clock := d.opts.Clock
	deadline := clock.Now().Add(d.opts.Timeout)
	var lastErr error

	for attempt := 1; ; attempt++ {
		select {
		case <-h.Done():
			return d.exited(h)
		case <-logReady:
			return d.ready("startup log line", attempt)
		case <-ctx.Done():
			return d.abort(h, ctx.Err())
		default:
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return d.timedOut(h, lastErr)
		}

		probeCtx, cancel := context.WithTimeout(ctx, remaining)
		err := probe(probeCtx)
		cancel()
		if err == nil {
			return d.ready("status command", attempt)
		}
		lastErr = err
		d.logger.Debug("broker not ready yet", "attempt", attempt, "error", err)

		remaining = deadline.Sub(clock.Now())
		if remaining <= 0 {
			return d.timedOut(h, lastErr)
		}
		wait := d.opts.Interval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-clock.After(wait):
		case <-h.Done():
			return d.exited(h)
		case <-logReady:
			return d.ready("startup log line", attempt)
		case <-ctx.Done():
			return d.abort(h, ctx.Err())
		}
	}
}

func (d *Detector) ready(signal string, attempts int) error {
	d.transition(StateReady)
	d.logger.Info("broker is ready", "signal", signal, "attempts", attempts)
	return nil
}

func (d *Detector) timedOut(h command.Handle, lastErr error) error {
	d.transition(StateTimedOut)
	d.logger.Warn("broker did not become ready, killing it", "timeout", d.opts.Timeout, "pid", h.Pid())
	d.kill(h)
	return &StartupTimeoutError{
		Timeout: d.opts.Timeout,
		LastErr: lastErr,
		Output:  combinedOutput(h),
	}
}

func (d *Detector) exited(h command.Handle) error {
	d.transition(StateFailed)
	res, err := h.Wait()
	exitCode := -1
	if res != nil {
		exitCode = res.ExitCode
	}
	// Descendants may still hold the group.
	d.kill(h)
	d.logger.Error("broker exited during startup", "exit_code", exitCode)
	return &StartupFailedError{ExitCode: exitCode, Output: combinedOutput(h), Err: err}
}

func (d *Detector) abort(h command.Handle, cause error) error {
	d.transition(StateFailed)
	d.kill(h)
	return fmt.Errorf("await broker readiness: %w", cause)
}

// kill ends the process tree and waits, bounded, for it to be reaped.
func (d *Detector) kill(h command.Handle) {
	if err := h.Kill(); err != nil {
		d.logger.Warn("kill broker", "pid", h.Pid(), "error", err)
	}
	select {
	case <-h.Done():
	case <-time.After(d.opts.KillWait):
		d.logger.Error("broker process not reaped after kill", "pid", h.Pid(), "wait", d.opts.KillWait)
	}
}

func combinedOutput(h command.Handle) string {
	stdout, stderr := h.Output()
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	default:
		return stdout + "\n" + stderr
	}
}
