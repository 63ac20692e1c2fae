package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
)

// ErrProcessSpawnFailed is returned when the runtime cannot be started.
var ErrProcessSpawnFailed = errors.New("process spawn failed")

// Spec describes the child to launch.
type Spec struct {
	Binary string
	Dir    string
	Args   []string
	Env    []string // KEY=VALUE pairs appended to the sanitized environment

	// Restart delivers restart requests from watch mode. A nil channel
	// never fires.
	Restart <-chan struct{}
}

// Outcome is how a supervised child ended.
type Outcome struct {
	ExitCode int
	// Restart is set when the child was stopped because of a restart request
	// rather than on its own or by the operator.
	Restart bool
}

// Supervisor runs one child at a time with inherited standard streams,
// relays termination signals to it and waits for it to exit.
type Supervisor struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Signals overrides the process signal subscription. Tests inject their
	// own channel; nil subscribes to the forwarded signals for each launch.
	Signals <-chan os.Signal

	// TerminalGroup reports that the child shares the operator's terminal
	// foreground group. The terminal already delivers interrupts to every
	// member of that group, so they are not sent a second time.
	TerminalGroup bool
}

// New returns a supervisor wired to the current process's standard streams.
func New() *Supervisor {
	return &Supervisor{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Launch starts spec and blocks until the child exits. Signals, restart
// requests and ctx cancellation all ask the child to stop; none of them
// abandon it. The child's exit code is reported in the outcome.
func (s *Supervisor) Launch(ctx context.Context, spec Spec) (*Outcome, error) {
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(runner.SanitizedEnv(), spec.Env...)
	cmd.Stdin = s.Stdin
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	signals := s.Signals
	if signals == nil {
		ch := make(chan os.Signal, 4)
		signal.Notify(ch, forwardedSignals...)
		defer signal.Stop(ch)
		signals = ch
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProcessSpawnFailed, spec.Binary, err)
	}
	slog.Debug("runtime started", "pid", cmd.Process.Pid, "binary", spec.Binary, "dir", spec.Dir)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var restart bool
	restarts := spec.Restart
	done := ctx.Done()

	for {
		select {
		case err := <-exited:
			if cmd.ProcessState == nil {
				return nil, fmt.Errorf("wait for runtime: %w", err)
			}
			code := exitCode(cmd.ProcessState)
			slog.Debug("runtime exited", "pid", cmd.Process.Pid, "code", code, "restart", restart)
			return &Outcome{ExitCode: code, Restart: restart}, nil

		case sig := <-signals:
			if s.TerminalGroup && sig == os.Interrupt {
				slog.Debug("interrupt delivered by terminal, waiting for runtime")
				continue
			}
			slog.Debug("forwarding signal", "signal", sig, "pid", cmd.Process.Pid)
			if err := forward(cmd.Process, sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.Warn("forward signal", "signal", sig, "error", err)
			}

		case <-restarts:
			restart = true
			restarts = nil
			slog.Info("stopping runtime for restart", "pid", cmd.Process.Pid)
			stop(cmd.Process)

		case <-done:
			done = nil
			slog.Debug("context cancelled, stopping runtime", "pid", cmd.Process.Pid)
			stop(cmd.Process)
		}
	}
}

func stop(p *os.Process) {
	if err := interrupt(p); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("stop runtime", "pid", p.Pid, "error", err)
	}
}
