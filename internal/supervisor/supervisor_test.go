//go:build !windows

package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

// output collects child output and reports when a marker line shows up.
type output struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	mark  string
	ready chan struct{}
	once  sync.Once
}

func newOutput(mark string) *output {
	return &output{mark: mark, ready: make(chan struct{})}
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.buf.Write(p)
	if o.mark != "" && strings.Contains(o.buf.String(), o.mark) {
		o.once.Do(func() { close(o.ready) })
	}
	return n, err
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *output) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("child never printed %q, output: %q", o.mark, o.String())
	}
}

func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pumpkin")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const loop = "echo ready\nwhile :; do sleep 0.1; done"

type launched struct {
	outcome *Outcome
	err     error
}

func launch(s *Supervisor, ctx context.Context, spec Spec) <-chan launched {
	ch := make(chan launched, 1)
	go func() {
		o, err := s.Launch(ctx, spec)
		ch <- launched{o, err}
	}()
	return ch
}

func result(t *testing.T, ch <-chan launched) *Outcome {
	t.Helper()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Launch: %v", r.err)
		}
		return r.outcome
	case <-time.After(10 * time.Second):
		t.Fatal("child did not exit")
		return nil
	}
}

func TestLaunch_ExitCodePassthrough(t *testing.T) {
	for _, code := range []int{0, 1, 3, 42} {
		out := newOutput("")
		s := &Supervisor{Stdout: out, Stderr: out, Signals: make(chan os.Signal)}
		bin := script(t, "exit "+strconv.Itoa(code))

		outcome, err := s.Launch(context.Background(), Spec{Binary: bin, Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("exit %d: %v", code, err)
		}
		if outcome.ExitCode != code {
			t.Errorf("got exit code %d, want %d", outcome.ExitCode, code)
		}
		if outcome.Restart {
			t.Error("plain exit reported as restart")
		}
	}
}

func TestLaunch_DirArgsEnv(t *testing.T) {
	dir := t.TempDir()
	out := newOutput("")
	s := &Supervisor{Stdout: out, Stderr: out, Signals: make(chan os.Signal)}
	bin := script(t, `pwd; echo "arg=$1"; echo "level=$PUMPKIN_LEVEL"; echo "token=$GITHUB_TOKEN"`)
	t.Setenv("GITHUB_TOKEN", "ghp_secret")

	_, err := s.Launch(context.Background(), Spec{
		Binary: bin,
		Dir:    dir,
		Args:   []string{"--nogui"},
		Env:    []string{"PUMPKIN_LEVEL=debug"},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := out.String()
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(got, resolved) && !strings.Contains(got, dir) {
		t.Errorf("child did not run in %s: %q", dir, got)
	}
	for _, want := range []string{"arg=--nogui", "level=debug", "token=\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}

func TestLaunch_ForwardsTerminate(t *testing.T) {
	out := newOutput("ready")
	sigs := make(chan os.Signal, 1)
	s := &Supervisor{Stdout: out, Stderr: out, Signals: sigs}
	bin := script(t, "trap 'echo shutting down; exit 42' TERM\n"+loop)

	ch := launch(s, context.Background(), Spec{Binary: bin, Dir: t.TempDir()})
	out.wait(t)
	sigs <- syscall.SIGTERM

	outcome := result(t, ch)
	if outcome.ExitCode != 42 {
		t.Errorf("got exit code %d, want the child's own 42", outcome.ExitCode)
	}
	if !strings.Contains(out.String(), "shutting down") {
		t.Error("child's shutdown sequence did not run")
	}
}

func TestLaunch_SignalKilledChild(t *testing.T) {
	out := newOutput("")
	s := &Supervisor{Stdout: out, Stderr: out, Signals: make(chan os.Signal)}
	bin := script(t, "kill -TERM $$")

	outcome, err := s.Launch(context.Background(), Spec{Binary: bin, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if want := 128 + int(syscall.SIGTERM); outcome.ExitCode != want {
		t.Errorf("got exit code %d, want %d", outcome.ExitCode, want)
	}
}

func TestLaunch_TerminalInterruptNotDuplicated(t *testing.T) {
	out := newOutput("ready")
	sigs := make(chan os.Signal, 2)
	s := &Supervisor{Stdout: out, Stderr: out, Signals: sigs, TerminalGroup: true}
	bin := script(t, "trap 'echo got-int' INT\ntrap 'exit 5' TERM\n"+loop)

	ch := launch(s, context.Background(), Spec{Binary: bin, Dir: t.TempDir()})
	out.wait(t)
	sigs <- os.Interrupt
	sigs <- syscall.SIGTERM

	outcome := result(t, ch)
	if outcome.ExitCode != 5 {
		t.Errorf("got exit code %d, want 5", outcome.ExitCode)
	}
	if strings.Contains(out.String(), "got-int") {
		t.Error("interrupt was sent to a child sharing the terminal")
	}
}

func TestLaunch_Restart(t *testing.T) {
	out := newOutput("ready")
	restart := make(chan struct{}, 1)
	s := &Supervisor{Stdout: out, Stderr: out, Signals: make(chan os.Signal)}
	bin := script(t, "trap 'exit 0' INT\n"+loop)

	ch := launch(s, context.Background(), Spec{Binary: bin, Dir: t.TempDir(), Restart: restart})
	out.wait(t)
	restart <- struct{}{}

	outcome := result(t, ch)
	if !outcome.Restart {
		t.Error("expected restart outcome")
	}
	if outcome.ExitCode != 0 {
		t.Errorf("got exit code %d", outcome.ExitCode)
	}
}

func TestLaunch_ContextCancelStopsChild(t *testing.T) {
	out := newOutput("ready")
	s := &Supervisor{Stdout: out, Stderr: out, Signals: make(chan os.Signal)}
	bin := script(t, "trap 'exit 7' INT\n"+loop)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := launch(s, ctx, Spec{Binary: bin, Dir: t.TempDir()})
	out.wait(t)
	cancel()

	outcome := result(t, ch)
	if outcome.ExitCode != 7 {
		t.Errorf("got exit code %d, want 7", outcome.ExitCode)
	}
	if outcome.Restart {
		t.Error("cancellation is not a restart")
	}
}

func TestLaunch_SpawnFailure(t *testing.T) {
	notExec := filepath.Join(t.TempDir(), "pumpkin")
	if err := os.WriteFile(notExec, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		binary string
	}{
		{"missing", filepath.Join(t.TempDir(), "pumpkin")},
		{"not executable", notExec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Supervisor{Signals: make(chan os.Signal)}
			_, err := s.Launch(context.Background(), Spec{Binary: tt.binary, Dir: t.TempDir()})
			if !errors.Is(err, ErrProcessSpawnFailed) {
				t.Fatalf("expected ErrProcessSpawnFailed, got %v", err)
			}
		})
	}
}
