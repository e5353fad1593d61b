package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/framelink/internal/logging"
)

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Process is a running subprocess.
type Process struct {
	cmd             *exec.Cmd
	stdout          *os.File
	logger          logging.Logger
	outputLogger    logging.Logger
	logParser       LogParser
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	done     chan struct{}
	exitErr  error
	stopOnce sync.Once
	exitCode int
}

// Option configures a Process.
type Option func(*Process)

// WithOutputLogger routes stderr lines to logger, leveled by parser.
func WithOutputLogger(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.outputLogger = logger
		p.logParser = parser
	}
}

// WithTimeouts sets how long Stop waits after SIGINT and after SIGKILL.
func WithTimeouts(graceful, kill time.Duration) Option {
	return func(p *Process) {
		p.gracefulTimeout = graceful
		p.killTimeout = kill
	}
}

// Start launches args[0] with the remaining arguments.
func Start(args []string, logger logging.Logger, opts ...Option) (*Process, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	p := &Process{
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	// Pipes are created by hand so Wait never closes the read ends under a
	// reader that is still draining them.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	p.cmd = exec.Command(args[0], args[1:]...)
	p.cmd.Stdout = stdoutW
	p.cmd.Stderr = stderrW
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := p.cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	stdoutW.Close()
	stderrW.Close()
	p.stdout = stdoutR

	p.logger.Info("Process started", "pid", p.cmd.Process.Pid, "command", args[0])

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		p.streamOutput(stderrR)
		stderrR.Close()
	}()
	go func() {
		err := p.cmd.Wait()
		<-outputDone
		p.exitErr = err
		p.exitCode = exitCodeFromError(err)
		close(p.done)
	}()
	return p, nil
}

// Stdout returns the subprocess stdout.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the subprocess has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the wait error after Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.exitErr
}

// ExitCode returns the exit status after Done is closed.
func (p *Process) ExitCode() int {
	<-p.done
	return p.exitCode
}

// Stop asks the subprocess to exit with SIGINT, kills it if it has not
// exited within the grace period, and returns its exit code. Idempotent.
func (p *Process) Stop() int {
	p.stopOnce.Do(func() {
		defer p.stdout.Close()

		select {
		case <-p.done:
			return
		default:
		}

		if err := p.signalGroup(syscall.SIGINT); err != nil {
			p.logger.Warn("Failed to send SIGINT", "error", err)
		}
		select {
		case <-p.done:
			return
		case <-time.After(p.gracefulTimeout):
		}

		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
		if err := p.signalGroup(syscall.SIGKILL); err != nil {
			p.logger.Error("Failed to kill process", "error", err)
		}
		select {
		case <-p.done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
	})

	select {
	case <-p.done:
		return p.exitCode
	default:
		return 137
	}
}

// signalGroup signals the subprocess and any children it spawned.
func (p *Process) signalGroup(sig syscall.Signal) error {
	err := syscall.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// exitCodeFromError returns 0 for nil, the status for an ExitError, 137 for
// a process killed by SIGKILL and 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

func (p *Process) streamOutput(r io.Reader) {
	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := "info", scanner.Text()
		if p.logParser != nil {
			level, msg = p.logParser(msg)
		}

		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "error", err)
	}
}
