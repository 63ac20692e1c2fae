package rundir

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
)

// Marker describes the runtime artifact currently in the run directory.
type Marker struct {
	Requirement cache.Requirement `json:"requirement"`
	Key         string            `json:"key"`
	Commit      string            `json:"commit,omitempty"` // empty for prebuilt runtimes
	Digest      string            `json:"digest"`           // BLAKE3 of the artifact, hex
	BuiltAt     time.Time         `json:"built_at"`
}

// NewMarker builds the marker for an artifact produced from req.
func NewMarker(req cache.Requirement, commit, digest string) *Marker {
	return &Marker{
		Requirement: req,
		Key:         req.Key(),
		Commit:      commit,
		Digest:      digest,
		BuiltAt:     time.Now().UTC(),
	}
}

// Marker reads the marker file.
func (d *Dir) Marker() (*Marker, error) {
	data, err := os.ReadFile(d.MarkerPath())
	if err != nil {
		return nil, err
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse marker: %w", err)
	}
	return &m, nil
}

// writeMarker writes the marker through a temp file so readers never see a
// partial document.
func writeMarker(path string, m *Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+MarkerName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// HashFile streams the file at path through BLAKE3 and returns the hex
// digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
