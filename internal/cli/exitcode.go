package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/build"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/project"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/rundir"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/supervisor"
)

// Exit codes for orchestrator failures. They sit in the sysexits range so
// they do not collide with common runtime exit codes; a runtime that exits
// on its own passes its code through unchanged.
const (
	ExitOK                    = 0
	ExitFailure               = 1
	ExitManifestNotFound      = 65
	ExitRuntimeBuildFailed    = 66
	ExitPluginBuildFailed     = 67
	ExitPluginArtifactMissing = 68
	ExitProcessSpawnFailed    = 69
	ExitCleanFailed           = 70
	ExitRunDirLocked          = 71
	ExitInterrupted           = 130
)

// ExitError carries the runtime's non-zero exit status out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("server exited with code %d", e.Code)
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, project.ErrManifestNotFound):
		return ExitManifestNotFound
	case errors.Is(err, rundir.ErrRunDirLocked):
		return ExitRunDirLocked
	case errors.Is(err, build.ErrRuntimeBuildFailed):
		return ExitRuntimeBuildFailed
	case errors.Is(err, build.ErrPluginBuildFailed):
		return ExitPluginBuildFailed
	case errors.Is(err, rundir.ErrPluginArtifactMissing):
		return ExitPluginArtifactMissing
	case errors.Is(err, supervisor.ErrProcessSpawnFailed):
		return ExitProcessSpawnFailed
	case errors.Is(err, rundir.ErrCleanFailed):
		return ExitCleanFailed
	}
	return ExitFailure
}

// ErrorSummary is the message shown to the operator for err. Build output
// that was already streamed live is not repeated.
func ErrorSummary(err error, echoed bool) error {
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	var buildErr *build.BuildError
	if echoed && errors.As(err, &buildErr) {
		return errors.New(buildErr.Summary())
	}
	return err
}
