package rundir

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
)

const (
	// DirName is the run directory created under the project root.
	DirName = ".run"

	// MarkerName records which requirement produced the runtime artifact.
	MarkerName = "runtime.json"

	// PluginsDirName is where the runtime looks for plugins, relative to its
	// working directory.
	PluginsDirName = "plugins"

	stagingPrefix = ".staging-"

	dirMode  os.FileMode = 0o755
	execMode os.FileMode = 0o755
)

var (
	ErrCleanFailed           = errors.New("rundir: clean failed")
	ErrRunDirLocked          = errors.New("rundir: run directory in use")
	ErrPluginArtifactMissing = errors.New("rundir: plugin artifact missing")
)

// Dir owns the on-disk run directory. Every read and write of .run goes
// through it.
type Dir struct {
	path string
}

// New returns the run directory handle for a project root. Nothing is
// created until Ensure.
func New(projectRoot string) *Dir {
	return &Dir{path: filepath.Join(projectRoot, DirName)}
}

// Path returns the run directory. The runtime is launched with it as its
// working directory.
func (d *Dir) Path() string { return d.path }

// RuntimePath returns the cached runtime binary location.
func (d *Dir) RuntimePath() string {
	return filepath.Join(d.path, RuntimeBinaryName())
}

// MarkerPath returns the runtime marker location.
func (d *Dir) MarkerPath() string { return filepath.Join(d.path, MarkerName) }

// PluginsPath returns the plugin directory.
func (d *Dir) PluginsPath() string { return filepath.Join(d.path, PluginsDirName) }

// Exists reports whether the run directory has been created.
func (d *Dir) Exists() bool {
	info, err := os.Stat(d.path)
	return err == nil && info.IsDir()
}

// Ensure creates the run directory and its plugin directory if absent.
// It never touches existing content: a second invocation calls Ensure before
// it learns that the directory is locked.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.PluginsPath(), dirMode); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	return nil
}

// Validate reports whether the cached runtime can be trusted. The marker must
// parse, the artifact must be a regular file, and its digest must equal the
// one the marker recorded. Absence is reported as invalid, never as an error.
func (d *Dir) Validate() cache.State {
	m, err := d.Marker()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cache.State{Reason: "no cached runtime"}
		}
		return cache.State{Reason: fmt.Sprintf("unreadable marker: %v", err)}
	}
	if m.Key == "" || m.Digest == "" {
		return cache.State{Reason: "incomplete marker"}
	}

	info, err := os.Stat(d.RuntimePath())
	if err != nil {
		return cache.State{Reason: "runtime artifact missing"}
	}
	if !info.Mode().IsRegular() {
		return cache.State{Reason: "runtime artifact is not a regular file"}
	}

	digest, err := HashFile(d.RuntimePath())
	if err != nil {
		return cache.State{Reason: fmt.Sprintf("runtime artifact unreadable: %v", err)}
	}
	if digest != m.Digest {
		return cache.State{Reason: "runtime artifact does not match marker"}
	}

	return cache.State{Valid: true, Key: m.Key}
}

// Clean removes the run directory. A missing directory is success. Clean
// refuses while another live process holds the run directory lock.
func (d *Dir) Clean() error {
	if info, locked := d.lockedByOther(); locked {
		return fmt.Errorf("%w: locked by PID %d (%s)", ErrRunDirLocked, info.PID, info.Command)
	}

	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrCleanFailed, d.path, err)
	}
	return nil
}

// Stage creates a private directory inside the run directory for assembling
// a new runtime artifact. The returned func removes it.
func (d *Dir) Stage() (string, func(), error) {
	dir, err := os.MkdirTemp(d.path, stagingPrefix+"*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create staging directory: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// sweepStaging removes staging directories left behind by interrupted
// builds. Only the lock holder may call it.
func (d *Dir) sweepStaging() {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		stale := filepath.Join(d.path, e.Name())
		slog.Debug("removing stale staging directory", "path", stale)
		if err := os.RemoveAll(stale); err != nil {
			slog.Warn("failed to remove staging directory", "path", stale, "error", err)
		}
	}
}

// PromoteRuntime replaces the cached runtime with a staged binary and records
// its marker. The old marker is removed first, so an interruption at any
// point leaves the directory invalid rather than inconsistent.
func (d *Dir) PromoteRuntime(staged string, m *Marker) error {
	if err := os.Remove(d.MarkerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate marker: %w", err)
	}
	if err := os.Chmod(staged, execMode); err != nil {
		return fmt.Errorf("chmod runtime: %w", err)
	}
	if err := os.Rename(staged, d.RuntimePath()); err != nil {
		return fmt.Errorf("promote runtime: %w", err)
	}
	if err := writeMarker(d.MarkerPath(), m); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// RuntimeBinaryName is the runtime executable name for this platform.
func RuntimeBinaryName() string {
	if goruntime.GOOS == "windows" {
		return "pumpkin.exe"
	}
	return "pumpkin"
}

// copyFileAtomic copies src into dst through a temp file in dst's directory
// and renames it into place.
func copyFileAtomic(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// CopyFile copies src to dst without the atomic rename; used to place
// build outputs into a staging directory.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, execMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
