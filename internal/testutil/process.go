package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// FakeHandle is a command.Handle whose lifetime the test controls.
type FakeHandle struct {
	pid  int
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	exitCode   int
	stdout     strings.Builder
	stderr     strings.Builder
	kills      int
	terminates int

	// ExitOnTerminate makes Terminate end the process, like a broker that
	// honours SIGTERM.
	ExitOnTerminate bool
}

// NewFakeHandle returns a running fake process.
func NewFakeHandle(pid int) *FakeHandle {
	return &FakeHandle{pid: pid, done: make(chan struct{})}
}

// Exit ends the process with code. Later calls are ignored.
func (h *FakeHandle) Exit(code int) {
	h.once.Do(func() {
		h.mu.Lock()
		h.exitCode = code
		h.mu.Unlock()
		close(h.done)
	})
}

// WriteStdout appends a line to the captured stdout.
func (h *FakeHandle) WriteStdout(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stdout.WriteString(line + "\n")
}

// WriteStderr appends a line to the captured stderr.
func (h *FakeHandle) WriteStderr(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stderr.WriteString(line + "\n")
}

// Kills returns how often Kill was called.
func (h *FakeHandle) Kills() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kills
}

// Terminates returns how often Terminate was called.
func (h *FakeHandle) Terminates() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminates
}

// Exited reports whether the process has ended.
func (h *FakeHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *FakeHandle) Pid() int              { return h.pid }
func (h *FakeHandle) Done() <-chan struct{} { return h.done }

func (h *FakeHandle) Wait() (*command.Result, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return &command.Result{ExitCode: h.exitCode, Stdout: h.stdout.String(), Stderr: h.stderr.String()}, nil
}

func (h *FakeHandle) Output() (string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stdout.String(), h.stderr.String()
}

func (h *FakeHandle) Terminate() error {
	h.mu.Lock()
	h.terminates++
	exit := h.ExitOnTerminate
	h.mu.Unlock()
	if exit {
		h.Exit(-1)
	}
	return nil
}

func (h *FakeHandle) Kill() error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	h.Exit(-1)
	return nil
}

// FakeExecutor records commands and delegates to optional functions.
type FakeExecutor struct {
	// RunFunc handles Run. Nil returns an empty successful result.
	RunFunc func(ctx context.Context, c command.Command) (*command.Result, error)
	// StartFunc handles Start. Nil returns a new running FakeHandle.
	StartFunc func(ctx context.Context, c command.Command) (command.Handle, error)

	mu     sync.Mutex
	runs   []command.Command
	starts []command.Command
}

func (e *FakeExecutor) Run(ctx context.Context, c command.Command) (*command.Result, error) {
	e.mu.Lock()
	e.runs = append(e.runs, c)
	fn := e.RunFunc
	e.mu.Unlock()

	if fn == nil {
		return &command.Result{}, nil
	}
	return fn(ctx, c)
}

func (e *FakeExecutor) Start(ctx context.Context, c command.Command) (command.Handle, error) {
	e.mu.Lock()
	e.starts = append(e.starts, c)
	fn := e.StartFunc
	e.mu.Unlock()

	if fn == nil {
		return NewFakeHandle(4242), nil
	}
	return fn(ctx, c)
}

// Runs returns the commands passed to Run so far.
func (e *FakeExecutor) Runs() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]command.Command(nil), e.runs...)
}

// Starts returns the commands passed to Start so far.
func (e *FakeExecutor) Starts() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]command.Command(nil), e.starts...)
}

// Factory returns a command.Factory that always yields e.
func (e *FakeExecutor) Factory() command.Factory {
	return func(log.Logger) command.Executor { return e }
}
