package build

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRuntimeBuildFailed = errors.New("runtime build failed")
	ErrPluginBuildFailed  = errors.New("plugin build failed")
)

// BuildError carries the diagnostic output of a failed build step.
type BuildError struct {
	Kind   error  // ErrRuntimeBuildFailed or ErrPluginBuildFailed
	Step   string // e.g. "git clone", "cargo build"
	Stderr string
	Err    error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString(e.Summary())
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString("\n")
		b.WriteString(stderr)
	}
	return b.String()
}

// Summary is the error without the captured tool output.
func (e *BuildError) Summary() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Step)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Step, e.Err)
}

func (e *BuildError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func runtimeError(step string, stderr []byte, err error) error {
	return &BuildError{Kind: ErrRuntimeBuildFailed, Step: step, Stderr: string(stderr), Err: err}
}

func pluginError(step string, stderr []byte, err error) error {
	return &BuildError{Kind: ErrPluginBuildFailed, Step: step, Stderr: string(stderr), Err: err}
}
