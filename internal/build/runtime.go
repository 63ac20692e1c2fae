package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/rundir"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/runner"
)

// gitEnv keeps git from prompting for credentials; builds run detached from
// the terminal.
var gitEnv = []string{"GIT_TERMINAL_PROMPT=0"}

// RuntimeBuilder produces the runtime artifact, either by building a git
// checkout with cargo or by copying a prebuilt binary.
type RuntimeBuilder struct {
	exec      runner.Executor
	dir       *rundir.Dir
	sourceDir string
}

// NewRuntimeBuilder creates a builder that keeps its checkout in sourceDir
// and promotes results into dir.
func NewRuntimeBuilder(exec runner.Executor, dir *rundir.Dir, sourceDir string) *RuntimeBuilder {
	return &RuntimeBuilder{exec: exec, dir: dir, sourceDir: sourceDir}
}

// SourceDir returns the runtime checkout location.
func (b *RuntimeBuilder) SourceDir() string { return b.sourceDir }

// Build produces a fresh runtime for req and promotes it into the run
// directory. Nothing in the run directory changes unless every step succeeds.
func (b *RuntimeBuilder) Build(ctx context.Context, req cache.Requirement, force bool) (*rundir.Marker, error) {
	staging, cleanup, err := b.dir.Stage()
	if err != nil {
		return nil, runtimeError("prepare staging", nil, err)
	}
	defer cleanup()

	staged := filepath.Join(staging, rundir.RuntimeBinaryName())
	var commit string

	if req.Prebuilt != "" {
		slog.Info("using prebuilt runtime", "path", req.Prebuilt)
		if err := rundir.CopyFile(req.Prebuilt, staged); err != nil {
			return nil, runtimeError("copy prebuilt runtime", nil, err)
		}
	} else {
		commit, err = b.FetchSource(ctx, req, force)
		if err != nil {
			return nil, err
		}
		if err := b.compile(ctx, req, staged); err != nil {
			return nil, err
		}
	}

	digest, err := rundir.HashFile(staged)
	if err != nil {
		return nil, runtimeError("hash runtime", nil, err)
	}

	marker := rundir.NewMarker(req, commit, digest)
	if err := b.dir.PromoteRuntime(staged, marker); err != nil {
		return nil, runtimeError("promote runtime", nil, err)
	}

	slog.Debug("runtime promoted", "key", marker.Key, "commit", commit, "digest", digest)
	return marker, nil
}

func (b *RuntimeBuilder) compile(ctx context.Context, req cache.Requirement, staged string) error {
	cmd := cargoBuild(req.Profile, "--bin", "pumpkin")
	cmd.Dir = b.sourceDir

	res, err := b.exec.Execute(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return runtimeError(cmd.String(), nil, err)
	}
	if !res.Success() {
		return runtimeError(cmd.String(), res.Stderr, fmt.Errorf("exit status %d", res.ExitCode))
	}

	target := targetDirectory(ctx, b.exec, filepath.Join(b.sourceDir, "Cargo.toml"))
	built := filepath.Join(target, req.Profile, rundir.RuntimeBinaryName())
	if err := rundir.CopyFile(built, staged); err != nil {
		return runtimeError("collect runtime binary", nil, err)
	}
	return nil
}

// FetchSource makes the source directory a checkout of req and returns the
// checked-out commit. force discards an existing checkout and clones again.
// A failed fetch of an existing checkout is tolerated; the build proceeds
// with what is already there.
func (b *RuntimeBuilder) FetchSource(ctx context.Context, req cache.Requirement, force bool) (string, error) {
	if force {
		if err := os.RemoveAll(b.sourceDir); err != nil {
			return "", runtimeError("remove runtime checkout", nil, err)
		}
	}

	if isCheckout(b.sourceDir) {
		slog.Info("updating runtime source", "dir", b.sourceDir)
		if _, err := b.git(ctx, "fetch", "--tags", "--force", "origin"); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("git fetch failed, continuing with existing checkout", "dir", b.sourceDir, "error", err)
		}
	} else {
		slog.Info("cloning runtime source", "repository", req.Repository, "dir", b.sourceDir)
		if err := os.RemoveAll(b.sourceDir); err != nil {
			return "", runtimeError("remove partial checkout", nil, err)
		}
		if err := os.MkdirAll(filepath.Dir(b.sourceDir), 0o755); err != nil {
			return "", runtimeError("create source directory", nil, err)
		}
		res, err := b.exec.Execute(ctx, runner.Command{
			Name: "git",
			Args: []string{"clone", req.Repository, b.sourceDir},
			Dir:  filepath.Dir(b.sourceDir),
			Env:  gitEnv,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", runtimeError("git clone", nil, err)
		}
		if !res.Success() {
			return "", runtimeError("git clone", res.Stderr, fmt.Errorf("exit status %d", res.ExitCode))
		}
	}

	rev := b.revision(ctx, req.Ref)
	if res, err := b.git(ctx, "checkout", "--force", "--detach", rev); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var stderr []byte
		if res != nil {
			stderr = res.Stderr
		}
		return "", runtimeError("git checkout "+rev, stderr, err)
	}

	res, err := b.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", runtimeError("git rev-parse", nil, err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// revision maps a requested ref to something checkout understands. Remote
// branches win over local names so a fetched branch is always current.
func (b *RuntimeBuilder) revision(ctx context.Context, ref string) string {
	if ref == "" {
		return "origin/HEAD"
	}
	if _, err := b.git(ctx, "rev-parse", "--verify", "--quiet", "refs/remotes/origin/"+ref); err == nil {
		return "origin/" + ref
	}
	return ref
}

// git runs a git subcommand inside the checkout. A non-zero exit is an error.
func (b *RuntimeBuilder) git(ctx context.Context, args ...string) (*runner.Result, error) {
	res, err := b.exec.Execute(ctx, runner.Command{
		Name: "git",
		Args: append([]string{"-C", b.sourceDir}, args...),
		Env:  gitEnv,
	})
	if err != nil {
		return res, err
	}
	if !res.Success() {
		return res, fmt.Errorf("git %s: exit status %d", args[0], res.ExitCode)
	}
	return res, nil
}

func isCheckout(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// IsCancelled reports whether err stems from operator cancellation rather
// than a build failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
