package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/testutil"
)

var errNotRunning = errors.New("node not running")

func newTestDetector(timeout time.Duration) (*Detector, *StepClock) {
	clock := NewStepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDetector(Options{
		Timeout:  timeout,
		Interval: 100 * time.Millisecond,
		Clock:    clock,
		KillWait: time.Second,
	})
	return d, clock
}

func TestDetector_ReadyAfterProbeSucceeds(t *testing.T) {
	d, _ := newTestDetector(3 * time.Second)
	h := testutil.NewFakeHandle(100)

	var calls atomic.Int32
	probe := func(ctx context.Context) error {
		if calls.Add(1) < 4 {
			return errNotRunning
		}
		return nil
	}

	if err := d.Await(context.Background(), h, probe, nil); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if d.State() != StateReady {
		t.Errorf("State() = %v, want READY", d.State())
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("probe called %d times, want 4", got)
	}
	if h.Kills() != 0 {
		t.Error("a ready broker must not be killed")
	}
}

func TestDetector_ReadyFromLogLine(t *testing.T) {
	d, _ := newTestDetector(3 * time.Second)
	h := testutil.NewFakeHandle(100)

	w := NewLogWatcher()
	w.Observe("stdout", "  Starting broker...")
	w.Observe("stdout", " completed with 3 plugins.")

	probe := func(ctx context.Context) error {
		t.Error("probe should not run once the log reports startup")
		return errNotRunning
	}

	if err := d.Await(context.Background(), h, probe, w.Ready()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if d.State() != StateReady {
		t.Errorf("State() = %v, want READY", d.State())
	}
}

func TestDetector_TimeoutKillsProcess(t *testing.T) {
	d, _ := newTestDetector(time.Second)
	h := testutil.NewFakeHandle(100)
	h.WriteStderr("BOOT FAILED")

	var calls atomic.Int32
	probe := func(ctx context.Context) error {
		calls.Add(1)
		return errNotRunning
	}

	err := d.Await(context.Background(), h, probe, nil)

	var timeoutErr *StartupTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Await() error = %v, want StartupTimeoutError", err)
	}
	if timeoutErr.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", timeoutErr.Timeout)
	}
	if !errors.Is(err, errNotRunning) {
		t.Error("timeout error should wrap the last probe failure")
	}
	if timeoutErr.Output != "BOOT FAILED\n" {
		t.Errorf("Output = %q", timeoutErr.Output)
	}
	if d.State() != StateTimedOut {
		t.Errorf("State() = %v, want TIMED_OUT", d.State())
	}
	if h.Kills() == 0 || !h.Exited() {
		t.Error("timed out broker must be killed")
	}
	// 1s deadline / 100ms interval.
	if got := calls.Load(); got != 10 {
		t.Errorf("probe called %d times, want 10", got)
	}
}

func TestDetector_ZeroTimeoutFailsImmediately(t *testing.T) {
	d, _ := newTestDetector(0)
	h := testutil.NewFakeHandle(100)

	probe := func(ctx context.Context) error {
		t.Error("probe should not run with a zero timeout")
		return nil
	}

	err := d.Await(context.Background(), h, probe, nil)

	var timeoutErr *StartupTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Await() error = %v, want StartupTimeoutError", err)
	}
	if h.Kills() != 1 {
		t.Errorf("Kills() = %d, want 1", h.Kills())
	}
}

func TestDetector_ProcessExitDuringPolling(t *testing.T) {
	d, _ := newTestDetector(3 * time.Second)
	h := testutil.NewFakeHandle(100)
	h.WriteStderr("eaddrinuse")

	var calls atomic.Int32
	probe := func(ctx context.Context) error {
		if calls.Add(1) == 2 {
			h.Exit(1)
		}
		return errNotRunning
	}

	err := d.Await(context.Background(), h, probe, nil)

	var failedErr *StartupFailedError
	if !errors.As(err, &failedErr) {
		t.Fatalf("Await() error = %v, want StartupFailedError", err)
	}
	if failedErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", failedErr.ExitCode)
	}
	if failedErr.Output != "eaddrinuse\n" {
		t.Errorf("Output = %q", failedErr.Output)
	}
	if d.State() != StateFailed {
		t.Errorf("State() = %v, want FAILED", d.State())
	}
}

func TestDetector_ContextCancelled(t *testing.T) {
	d, _ := newTestDetector(3 * time.Second)
	h := testutil.NewFakeHandle(100)

	ctx, cancel := context.WithCancel(context.Background())
	probe := func(ctx context.Context) error {
		cancel()
		return errNotRunning
	}

	err := d.Await(ctx, h, probe, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Await() error = %v, want context.Canceled", err)
	}
	if h.Kills() == 0 {
		t.Error("cancelled startup must kill the broker")
	}
	if d.State() != StateFailed {
		t.Errorf("State() = %v, want FAILED", d.State())
	}
}

func TestDetector_ProbeDeadlineBoundedByTimeout(t *testing.T) {
	d, _ := newTestDetector(2 * time.Second)
	h := testutil.NewFakeHandle(100)

	probe := func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("probe context has no deadline")
		} else if time.Until(deadline) > 2*time.Second {
			t.Errorf("probe deadline %v exceeds the readiness timeout", time.Until(deadline))
		}
		return nil
	}

	if err := d.Await(context.Background(), h, probe, nil); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateLaunching, "LAUNCHING", false},
		{StatePolling, "POLLING", false},
		{StateReady, "READY", true},
		{StateTimedOut, "TIMED_OUT", true},
		{StateFailed, "FAILED", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.state.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestLogWatcher(t *testing.T) {
	tests := []struct {
		line  string
		ready bool
	}{
		{"  Starting broker...", false},
		{"2024-01-01 12:00:00.000 [info] <0.9.0> Server startup complete; 3 plugins started.", true},
		{" completed with 0 plugins.", true},
		{" completed with 1 plugin.", true},
		{"completed with plugins", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			w := NewLogWatcher()
			w.Observe("stdout", tt.line)

			select {
			case <-w.Ready():
				if !tt.ready {
					t.Error("unexpected ready")
				}
			default:
				if tt.ready {
					t.Error("expected ready")
				}
			}
		})
	}
}
