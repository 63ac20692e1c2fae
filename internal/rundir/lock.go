package rundir

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = ".lock"

// LockInfo is the content of .run/.lock.
type LockInfo struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
}

func (d *Dir) lockPath() string { return filepath.Join(d.path, lockFileName) }

// Acquire makes this process the only cargo-pumpkin invocation working in
// the run directory. A lock held by a live process yields ErrRunDirLocked;
// one left by a dead process is taken over. Once held, leftovers from
// interrupted builds are swept.
func (d *Dir) Acquire(command string) error {
	self := &LockInfo{PID: os.Getpid(), Command: command, StartedAt: time.Now()}

	err := createLock(d.lockPath(), self)
	if errors.Is(err, os.ErrExist) {
		err = d.takeOver(self)
	} else if err != nil {
		err = fmt.Errorf("create lock %s: %w", d.lockPath(), err)
	}
	if err != nil {
		return err
	}

	d.sweepStaging()
	return nil
}

// takeOver replaces a lock whose owner has exited.
func (d *Dir) takeOver(self *LockInfo) error {
	holder, err := d.ReadLock()
	if err != nil {
		return fmt.Errorf("%w (unreadable lock: %v)", ErrRunDirLocked, err)
	}
	if processAlive(holder.PID) {
		return fmt.Errorf("%w: held by PID %d (%s) since %s",
			ErrRunDirLocked, holder.PID, holder.Command, holder.StartedAt.Format(time.RFC3339))
	}

	slog.Warn("taking over lock of exited process", "dir", d.path, "pid", holder.PID, "command", holder.Command)
	if err := os.Remove(d.lockPath()); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if err := createLock(d.lockPath(), self); err != nil {
		return fmt.Errorf("create lock %s: %w", d.lockPath(), err)
	}
	return nil
}

// Release drops the lock. Safe to call when it is not held.
func (d *Dir) Release() {
	if err := os.Remove(d.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to release lock", "path", d.lockPath(), "error", err)
	}
}

// ReadLock returns the current lock holder.
func (d *Dir) ReadLock() (*LockInfo, error) {
	data, err := os.ReadFile(d.lockPath())
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &info, nil
}

// lockedByOther reports a live holder other than this process.
func (d *Dir) lockedByOther() (*LockInfo, bool) {
	info, err := d.ReadLock()
	if err != nil || info.PID == os.Getpid() || !processAlive(info.PID) {
		return nil, false
	}
	return info, true
}

// createLock fails with os.ErrExist when the file is already there.
func createLock(path string, info *LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	encErr := json.NewEncoder(f).Encode(info)
	if err := f.Close(); encErr == nil {
		encErr = err
	}
	return encErr
}
