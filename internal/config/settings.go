package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/MagicTeaMC/cargo-pumpkin/internal/cache"
	"github.com/MagicTeaMC/cargo-pumpkin/internal/project"
)

// FileName is the settings file looked up in the project root.
const FileName = ".pumpkin.yml"

// DefaultRepository is the upstream Pumpkin server repository.
const DefaultRepository = "https://github.com/Pumpkin-MC/Pumpkin.git"

// DefaultWatchDebounce is how long watch mode waits for edits to settle.
const DefaultWatchDebounce = 500 * time.Millisecond

// Settings holds per-project defaults loaded from .pumpkin.yml.
type Settings struct {
	Repository string `yaml:"repository"`
	Ref        string `yaml:"ref"`
	Profile    string `yaml:"profile"`    // debug or release
	Prebuilt   string `yaml:"prebuilt"`   // prebuilt runtime binary, relative to the project root
	SourceDir  string `yaml:"source_dir"` // runtime checkout; defaults to the user cache dir

	// Passed to the runtime at launch
	Args []string          `yaml:"args,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`

	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// LoadSettings reads a YAML config file into Settings.
// If the file does not exist, it returns zero-value Settings and nil error.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if s.Profile != "" && !validProfile(s.Profile) {
		return nil, fmt.Errorf("parse config %s: profile %q must be %q or %q",
			path, s.Profile, cache.ProfileDebug, cache.ProfileRelease)
	}

	return &s, nil
}

// Requirement resolves the runtime requirement for a project. Settings take
// precedence over what Cargo.toml declares, which takes precedence over the
// built-in defaults.
func (s *Settings) Requirement(m *project.Manifest) (cache.Requirement, error) {
	req := cache.Requirement{
		Repository: DefaultRepository,
		Profile:    DefaultProfile(),
	}

	if m.Runtime.Repository != "" {
		req.Repository = m.Runtime.Repository
	}
	if m.Runtime.Ref != "" {
		req.Ref = m.Runtime.Ref
	}
	if m.Runtime.Profile != "" {
		if !validProfile(m.Runtime.Profile) {
			return cache.Requirement{}, fmt.Errorf("%s: [package.metadata.pumpkin] profile %q must be %q or %q",
				m.Path, m.Runtime.Profile, cache.ProfileDebug, cache.ProfileRelease)
		}
		req.Profile = m.Runtime.Profile
	}

	if s.Repository != "" {
		req.Repository = s.Repository
	}
	if s.Ref != "" {
		req.Ref = s.Ref
	}
	if s.Profile != "" {
		req.Profile = s.Profile
	}
	if s.Prebuilt != "" {
		path := s.Prebuilt
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.Root, path)
		}
		req.Prebuilt = filepath.Clean(path)
	}

	return req, nil
}

// Debounce returns the watch debounce, falling back to the default.
func (s *Settings) Debounce() time.Duration {
	if s.WatchDebounce > 0 {
		return s.WatchDebounce
	}
	return DefaultWatchDebounce
}

// SourcePath returns the runtime checkout directory for req. Unless
// source_dir is set, checkouts live in the user cache so plugin projects
// pinned to the same repository share one clone.
func (s *Settings) SourcePath(root string, req cache.Requirement) string {
	if s.SourceDir != "" {
		if filepath.IsAbs(s.SourceDir) {
			return filepath.Clean(s.SourceDir)
		}
		return filepath.Join(root, s.SourceDir)
	}
	return filepath.Join(xdg.CacheHome, "cargo-pumpkin", "src", repositorySlug(req.Repository))
}

// repositorySlug turns a repository URL into a single path element.
// "https://github.com/Pumpkin-MC/Pumpkin.git" → "github.com_Pumpkin-MC_Pumpkin"
func repositorySlug(repo string) string {
	if _, rest, ok := strings.Cut(repo, "://"); ok {
		repo = rest
	}
	repo = strings.TrimSuffix(strings.TrimSuffix(repo, "/"), ".git")
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, repo)
	if slug == "" {
		return "default"
	}
	return slug
}

// RuntimeEnv returns the configured runtime environment as KEY=VALUE pairs
// in key order.
func (s *Settings) RuntimeEnv() []string {
	return MapToEnvSlice(s.Env)
}

// MapToEnvSlice converts an env map to a sorted KEY=VALUE slice.
func MapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// DefaultProfile is release on Windows, where the runtime only loads
// plugins built in release mode, and debug elsewhere.
func DefaultProfile() string {
	if goruntime.GOOS == "windows" {
		return cache.ProfileRelease
	}
	return cache.ProfileDebug
}

func validProfile(p string) bool {
	return p == cache.ProfileDebug || p == cache.ProfileRelease
}
