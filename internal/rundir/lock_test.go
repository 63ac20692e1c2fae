package rundir

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func ensured(t *testing.T) *Dir {
	t.Helper()
	d := New(t.TempDir())
	if err := d.Ensure(); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestAcquireRelease(t *testing.T) {
	d := ensured(t)

	if err := d.Acquire("run"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	lockPath := filepath.Join(d.Path(), lockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("lock file not created: %v", err)
	}

	d.Release()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock file not removed after release")
	}
}

func TestAcquireContention(t *testing.T) {
	d := ensured(t)

	if err := d.Acquire("run"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer d.Release()

	err := d.Acquire("run")
	if !errors.Is(err, ErrRunDirLocked) {
		t.Fatalf("expected ErrRunDirLocked on contention, got %v", err)
	}
}

func TestAcquireStaleLock(t *testing.T) {
	d := ensured(t)

	// write a lock with a PID that almost certainly doesn't exist
	stalePID := 99999999
	info := LockInfo{PID: stalePID, Command: "run"}
	data, _ := json.Marshal(info)
	if err := os.WriteFile(filepath.Join(d.Path(), lockFileName), data, 0o644); err != nil {
		t.Fatal(err)
	}

	// acquire should reclaim the stale lock
	if err := d.Acquire("init"); err != nil {
		t.Fatalf("expected stale lock reclaim, got: %v", err)
	}
	defer d.Release()

	got, err := d.ReadLock()
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != "init" {
		t.Errorf("expected command 'init', got %q", got.Command)
	}
	if got.PID != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), got.PID)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	d := ensured(t)

	// releasing a non-existent lock should not panic or error
	d.Release()
	d.Release()
}

func TestAcquireWritesJSON(t *testing.T) {
	d := ensured(t)

	if err := d.Acquire("run"); err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	info, err := d.ReadLock()
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}

	if info.PID != os.Getpid() {
		t.Errorf("PID: got %d, want %d", info.PID, os.Getpid())
	}
	if info.Command != "run" {
		t.Errorf("Command: got %q, want 'run'", info.Command)
	}
	if info.StartedAt.IsZero() {
		t.Error("StartedAt should not be zero")
	}
}

func TestAcquireMissingDir(t *testing.T) {
	d := New(t.TempDir())

	err := d.Acquire("run")
	if err == nil {
		t.Fatal("expected error when run directory does not exist")
	}
	if errors.Is(err, ErrRunDirLocked) {
		t.Errorf("missing directory should not report a lock conflict: %v", err)
	}
}

func TestProcessAlive(t *testing.T) {
	tests := []struct {
		name string
		pid  int
		want bool
	}{
		{"self", os.Getpid(), true},
		{"parent", os.Getppid(), true},
		{"zero", 0, false},
		{"negative", -1, false},
		{"unused", 99999999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processAlive(tt.pid); got != tt.want {
				t.Errorf("processAlive(%d) = %v, want %v", tt.pid, got, tt.want)
			}
		})
	}
}

