package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // KEY=VALUE pairs added on top of the inherited environment
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports a zero exit status.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// Executor runs external tools. Implementations: ExecRunner; tests use fakes.
//
// A non-zero exit is not an error: it is reported through Result.ExitCode.
// The error return is reserved for commands that could not be started or
// were cancelled.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct {
	// Echo, if set, receives a live copy of the command's stderr (cargo
	// reports progress there).
	Echo io.Writer
}

// NewExecRunner creates an ExecRunner that echoes stderr to echo.
func NewExecRunner(echo io.Writer) *ExecRunner {
	return &ExecRunner{Echo: echo}
}

// Execute runs cmd, capturing stdout and stderr.
func (r *ExecRunner) Execute(ctx context.Context, c Command) (*Result, error) {
	slog.Debug("exec", "cmd", c.String(), "dir", c.Dir)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	setupProcessGroup(cmd)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.Echo != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Echo)
	}

	err := cmd.Run()
	result := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// killed by a signal
			result.ExitCode = 1
		}
		return result, nil
	}

	return result, fmt.Errorf("start %s: %w", c.Name, err)
}
