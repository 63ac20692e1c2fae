package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/project"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/rundir"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
)

// PluginBuilder compiles the user's plugin crate and installs the library
// into the run directory.
type PluginBuilder struct {
	exec    runner.Executor
	dir     *rundir.Dir
	profile string
}

// NewPluginBuilder creates a builder for the given cargo profile.
func NewPluginBuilder(exec runner.Executor, dir *rundir.Dir, profile string) *PluginBuilder {
	return &PluginBuilder{exec: exec, dir: dir, profile: profile}
}

// Build runs cargo against the plugin manifest and installs the resulting
// library. It returns the installed path.
func (b *PluginBuilder) Build(ctx context.Context, m *project.Manifest) (string, error) {
	cmd := cargoBuild(b.profile, "--lib", "--manifest-path", m.Path)
	cmd.Dir = m.Root

	res, err := b.exec.Execute(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", pluginError(cmd.String(), nil, err)
	}
	if !res.Success() {
		return "", pluginError(cmd.String(), res.Stderr, fmt.Errorf("exit status %d", res.ExitCode))
	}

	target := targetDirectory(ctx, b.exec, m.Path)
	built := filepath.Join(target, b.profile, PluginFileName(m.LibName))
	if _, err := os.Stat(built); err != nil {
		return "", fmt.Errorf("%w: cargo produced no %s (is crate-type cdylib set?)",
			rundir.ErrPluginArtifactMissing, built)
	}

	installed, err := b.dir.InstallPlugin(built)
	if err != nil {
		return "", pluginError("install plugin", nil, err)
	}
	slog.Debug("plugin installed", "from", built, "to", installed)
	return installed, nil
}

// Reuse returns the previously installed plugin without building. It fails
// with rundir.ErrPluginArtifactMissing when there is none.
func (b *PluginBuilder) Reuse(m *project.Manifest) (string, error) {
	return b.dir.PluginArtifact(PluginFileName(m.LibName))
}

// PluginFileName is the dynamic library file cargo emits for a cdylib named
// lib on this platform.
func PluginFileName(lib string) string {
	return pluginFileName(goruntime.GOOS, lib)
}

func pluginFileName(goos, lib string) string {
	switch goos {
	case "windows":
		return lib + ".dll"
	case "darwin", "ios":
		return "lib" + lib + ".dylib"
	default:
		return "lib" + lib + ".so"
	}
}
