package command

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// Stream identifies one of the child's output streams.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LineHandler receives every line a child writes, in order per stream.
// It runs on the capture goroutine and must not block.
type LineHandler func(stream Stream, line string)

// Command describes a process to run.
type Command struct {
	// Path is the executable.
	Path string
	Args []string
	// Env overlays the parent environment. Entries here always win.
	Env map[string]string
	// Dir is the working directory; empty means the parent's.
	Dir string
	// Timeout bounds Run. Zero means no timeout. Start ignores it.
	Timeout time.Duration
	// StreamOutput forwards each output line to the logger at debug level.
	StreamOutput bool
	// OnLine, when set, is called for every captured line.
	OnLine LineHandler
}

// String renders the command line for diagnostics.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'") {
		return strconv.Quote(s)
	}
	return s
}

// Result is the outcome of a finished process.
type Result struct {
	// ExitCode is -1 when the process was terminated by a signal.
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Handle is a running process.
type Handle interface {
	// Pid returns the operating system process id.
	Pid() int
	// Done is closed once the process has exited and its output is drained.
	Done() <-chan struct{}
	// Wait blocks until Done and returns the final result.
	Wait() (*Result, error)
	// Output returns a snapshot of everything captured so far.
	Output() (stdout, stderr string)
	// Terminate asks the process tree to exit (SIGTERM on Unix).
	Terminate() error
	// Kill forcefully ends the process and its descendants.
	Kill() error
}

// Executor runs commands.
type Executor interface {
	// Run executes c and blocks until it exits. A timeout kills the process
	// tree and returns a *CommandTimeoutError; a non-zero exit returns the
	// result together with a *CommandFailedError.
	Run(ctx context.Context, c Command) (*Result, error)
	// Start launches c and returns without waiting for it to exit.
	Start(ctx context.Context, c Command) (Handle, error)
}

// Factory constructs an Executor. It lets callers substitute test doubles.
type Factory func(logger log.Logger) Executor

// DefaultFactory returns an executor backed by os/exec.
func DefaultFactory(logger log.Logger) Executor {
	return NewExecutor(logger)
}
