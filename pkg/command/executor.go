package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

const (
	// waitDelay bounds how long Wait keeps draining pipes held open by
	// descendants after the direct child has exited.
	waitDelay = 2 * time.Second

	scanInitialBuf = 4 * 1024
	scanMaxBuf     = 256 * 1024
)

// OSExecutor runs commands with os/exec.
type OSExecutor struct {
	logger      log.Logger
	outputLimit int
}

// NewExecutor creates an executor that logs through logger.
func NewExecutor(logger log.Logger) *OSExecutor {
	return &OSExecutor{
		logger:      log.OrNoop(logger),
		outputLimit: defaultOutputLimit,
	}
}

// Run implements Executor.
func (e *OSExecutor) Run(ctx context.Context, c Command) (*Result, error) {
	h, err := e.start(ctx, c)
	if err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-h.done:
	case <-timeout:
		e.logger.Warn("command timed out, killing", "command", c.String(), "timeout", c.Timeout)
		if err := h.Kill(); err != nil {
			e.logger.Warn("kill timed out command", "pid", h.Pid(), "error", err)
		}
		<-h.done
		stdout, stderr := h.Output()
		return nil, &CommandTimeoutError{
			CommandLine: c.String(),
			Timeout:     c.Timeout,
			Stdout:      stdout,
			Stderr:      stderr,
		}
	case <-ctx.Done():
		if err := h.Kill(); err != nil {
			e.logger.Warn("kill cancelled command", "pid", h.Pid(), "error", err)
		}
		<-h.done
		return nil, fmt.Errorf("run %s: %w", c.String(), ctx.Err())
	}

	res, err := h.Wait()
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, &CommandFailedError{
			CommandLine: c.String(),
			ExitCode:    res.ExitCode,
			Stdout:      res.Stdout,
			Stderr:      res.Stderr,
		}
	}
	return res, nil
}

// Start implements Executor. The returned process is not bound to ctx; the
// caller owns its lifetime and must Terminate or Kill it.
func (e *OSExecutor) Start(ctx context.Context, c Command) (Handle, error) {
	return e.start(ctx, c)
}

func (e *OSExecutor) start(ctx context.Context, c Command) (*process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.String(), err)
	}
	if c.Path == "" {
		return nil, errors.New("start command: executable path is empty")
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = ComposeEnv(environ(), c.Env)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = waitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	p := &process{
		cmd:    cmd,
		line:   c.String(),
		stdout: newOutputBuffer(e.outputLimit),
		stderr: newOutputBuffer(e.outputLimit),
		done:   make(chan struct{}),
		logger: e.logger,
	}

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return nil, fmt.Errorf("start %s: %w", p.line, err)
	}
	p.started = time.Now()
	e.logger.Debug("process started", "command", p.line, "pid", cmd.Process.Pid)

	var pumps errgroup.Group
	pumps.Go(func() error { return p.pump(stdoutR, StreamStdout, p.stdout, c) })
	pumps.Go(func() error { return p.pump(stderrR, StreamStderr, p.stderr, c) })

	go func() {
		waitErr := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		if err := pumps.Wait(); err != nil {
			e.logger.Warn("output capture failed", "command", p.line, "error", err)
		}
		p.finish(waitErr)
	}()

	return p, nil
}

// process is the os/exec backed Handle.
type process struct {
	cmd     *exec.Cmd
	line    string
	started time.Time
	logger  log.Logger

	stdout *outputBuffer
	stderr *outputBuffer

	done   chan struct{}
	result *Result
	err    error

	killOnce sync.Once
	killErr  error
}

// pump copies one stream line by line into buf until EOF. It always drains
// the reader, even after a scan error, so the child can never block writing.
func (p *process) pump(r *io.PipeReader, stream Stream, buf *outputBuffer, c Command) error {
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scanInitialBuf), scanMaxBuf)

	for scanner.Scan() {
		line := scanner.Text()
		buf.appendLine(line)
		if c.StreamOutput {
			p.logger.Debug(line, "stream", string(stream), "pid", p.Pid())
		}
		if c.OnLine != nil {
			c.OnLine(stream, line)
		}
	}

	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("read %s: %w", stream, err)
	}
	return nil
}

func (p *process) finish(waitErr error) {
	res := &Result{
		ExitCode: -1,
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
		Duration: time.Since(p.started),
	}
	if state := p.cmd.ProcessState; state != nil {
		res.ExitCode = state.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil, errors.As(waitErr, &exitErr):
	case errors.Is(waitErr, exec.ErrWaitDelay):
		p.logger.Debug("descendants held output open past exit", "command", p.line)
	default:
		p.err = fmt.Errorf("wait %s: %w", p.line, waitErr)
	}

	p.result = res
	p.logger.Debug("process exited", "command", p.line, "pid", p.Pid(), "exit_code", res.ExitCode, "duration", res.Duration)
	close(p.done)
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Wait() (*Result, error) {
	<-p.done
	return p.result, p.err
}

func (p *process) Output() (string, string) {
	return p.stdout.String(), p.stderr.String()
}

func (p *process) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return terminateGroup(p.Pid())
}

// Kill ends the process group and then any descendant that left it.
func (p *process) Kill() error {
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			// The leader is reaped; on Unix its group may still have members.
			if runtime.GOOS != "windows" {
				p.killErr = killGroup(p.Pid())
			}
			return
		default:
		}

		var errs []error
		if err := KillTree(p.Pid()); err != nil {
			errs = append(errs, err)
		}
		if err := killGroup(p.Pid()); err != nil {
			errs = append(errs, err)
		}
		p.killErr = errors.Join(errs...)
	})
	return p.killErr
}
