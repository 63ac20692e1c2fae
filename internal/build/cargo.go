package build

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
)

// cargoBuild returns the cargo invocation for a build in the given profile.
func cargoBuild(profile string, extra ...string) runner.Command {
	args := append([]string{"build"}, extra...)
	if profile == cache.ProfileRelease {
		args = append(args, "--release")
	}
	return runner.Command{Name: "cargo", Args: args}
}

// targetDirectory asks cargo where build outputs for manifestPath land. This
// covers workspaces and CARGO_TARGET_DIR; when cargo metadata is unavailable
// the conventional location is assumed.
func targetDirectory(ctx context.Context, exec runner.Executor, manifestPath string) string {
	root := filepath.Dir(manifestPath)
	fallback := filepath.Join(root, "target")
	if env := os.Getenv("CARGO_TARGET_DIR"); env != "" {
		fallback = env
		if !filepath.IsAbs(env) {
			fallback = filepath.Join(root, env)
		}
	}

	res, err := exec.Execute(ctx, runner.Command{
		Name: "cargo",
		Args: []string{"metadata", "--format-version", "1", "--no-deps", "--manifest-path", manifestPath},
		Dir:  root,
	})
	if err != nil || !res.Success() {
		slog.Debug("cargo metadata unavailable, assuming default target dir", "dir", fallback, "error", err)
		return fallback
	}

	var meta struct {
		TargetDirectory string `json:"target_directory"`
	}
	if err := json.Unmarshal(res.Stdout, &meta); err != nil || meta.TargetDirectory == "" {
		slog.Debug("unparseable cargo metadata, assuming default target dir", "dir", fallback)
		return fallback
	}
	return meta.TargetDirectory
}
