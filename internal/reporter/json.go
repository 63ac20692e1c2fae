package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/rundir"
)

// Status is a snapshot of a project's run directory.
type Status struct {
	Project        string            `json:"project"`
	Manifest       string            `json:"manifest"`
	RunDir         string            `json:"run_dir"`
	SourceDir      string            `json:"source_dir"`
	Requirement    cache.Requirement `json:"requirement"`
	Key            string            `json:"key"`
	Runtime        RuntimeStatus     `json:"runtime"`
	PluginArtifact string            `json:"plugin_artifact,omitempty"`
	Lock           *rundir.LockInfo  `json:"lock,omitempty"`
}

// RuntimeStatus describes the cached runtime and what the next run would do
// with it.
type RuntimeStatus struct {
	Valid   bool      `json:"valid"`
	Action  string    `json:"action"`
	Reason  string    `json:"reason,omitempty"`
	Commit  string    `json:"commit,omitempty"`
	Digest  string    `json:"digest,omitempty"`
	BuiltAt time.Time `json:"built_at,omitzero"`
}

// WriteStatusJSON writes s as indented JSON.
func WriteStatusJSON(w io.Writer, s *Status) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
