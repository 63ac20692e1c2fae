package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
)

// fakeExec records invocations and answers them through handle.
type fakeExec struct {
	mu     sync.Mutex
	calls  []runner.Command
	handle func(runner.Command) (*runner.Result, error)
}

func (f *fakeExec) Execute(ctx context.Context, c runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.handle == nil {
		return &runner.Result{}, nil
	}
	return f.handle(c)
}

// ran reports whether a command starting with name and the given args was
// executed. git's leading "-C dir" is ignored.
func (f *fakeExec) ran(name string, args ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Name != name {
			continue
		}
		got := subArgs(c)
		if len(got) >= len(args) && strings.Join(got[:len(args)], " ") == strings.Join(args, " ") {
			return true
		}
	}
	return false
}

func subArgs(c runner.Command) []string {
	if c.Name == "git" && len(c.Args) >= 2 && c.Args[0] == "-C" {
		return c.Args[2:]
	}
	return c.Args
}

func ok(stdout string) (*runner.Result, error) {
	return &runner.Result{Stdout: []byte(stdout)}, nil
}

func fail(code int, stderr string) (*runner.Result, error) {
	return &runner.Result{ExitCode: code, Stderr: []byte(stderr)}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
}
