package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the file that marks a plugin project root.
const ManifestName = "Cargo.toml"

// ErrManifestNotFound is returned when no package manifest exists in the
// directory or any of its parents.
var ErrManifestNotFound = errors.New("project: Cargo.toml not found")

// errNotPackage marks a manifest without a [package] table (virtual workspace).
var errNotPackage = errors.New("manifest has no [package] table")

// Manifest is the identity of the plugin crate being developed.
type Manifest struct {
	Root       string      // directory containing Cargo.toml
	Path       string      // absolute path to Cargo.toml
	Name       string      // [package].name
	LibName    string      // library target name, dashes replaced by underscores
	CrateTypes []string    // [lib].crate-type
	Runtime    RuntimeDecl // runtime requirement declared by the crate
}

// RuntimeDecl is the runtime requirement as declared in Cargo.toml.
// Empty fields are not declared.
type RuntimeDecl struct {
	Repository string
	Ref        string
	Profile    string
}

type cargoManifest struct {
	Package *struct {
		Name     string `toml:"name"`
		Metadata struct {
			Pumpkin struct {
				Repository string `toml:"repository"`
				Ref        string `toml:"ref"`
				Profile    string `toml:"profile"`
			} `toml:"pumpkin"`
		} `toml:"metadata"`
	} `toml:"package"`
	Lib struct {
		Name      string   `toml:"name"`
		CrateType []string `toml:"crate-type"`
	} `toml:"lib"`
	Dependencies map[string]any `toml:"dependencies"`
}

// Resolve finds the nearest Cargo.toml with a [package] table, starting at
// dir and walking up to the filesystem root.
func Resolve(dir string) (*Manifest, error) {
	start, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	for dir = start; ; {
		path := filepath.Join(dir, ManifestName)
		m, err := Load(path)
		switch {
		case err == nil:
			return m, nil
		case errors.Is(err, os.ErrNotExist), errors.Is(err, errNotPackage):
			// keep walking
		default:
			return nil, fmt.Errorf("%w: %s: %v", ErrManifestNotFound, path, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w in %s or any parent directory", ErrManifestNotFound, start)
		}
		dir = parent
	}
}

// Load parses a single Cargo.toml.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cm cargoManifest
	if err := toml.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if cm.Package == nil {
		return nil, errNotPackage
	}
	if cm.Package.Name == "" {
		return nil, fmt.Errorf("parse manifest: [package] has no name")
	}

	libName := cm.Lib.Name
	if libName == "" {
		libName = cm.Package.Name
	}

	m := &Manifest{
		Root:       filepath.Dir(path),
		Path:       path,
		Name:       cm.Package.Name,
		LibName:    strings.ReplaceAll(libName, "-", "_"),
		CrateTypes: cm.Lib.CrateType,
		Runtime:    dependencyDecl(cm.Dependencies),
	}

	meta := cm.Package.Metadata.Pumpkin
	if meta.Repository != "" {
		m.Runtime.Repository = meta.Repository
	}
	if meta.Ref != "" {
		m.Runtime.Ref = meta.Ref
	}
	m.Runtime.Profile = meta.Profile

	if !slices.Contains(m.CrateTypes, "cdylib") {
		slog.Warn("plugin crate does not declare crate-type cdylib; the runtime cannot load it",
			"manifest", path)
	}

	return m, nil
}

// dependencyDecl derives the runtime requirement from the crate's git
// dependency on pumpkin. A dependency literally named "pumpkin" wins over any
// other pumpkin-* git dependency.
func dependencyDecl(deps map[string]any) RuntimeDecl {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	if _, ok := deps["pumpkin"]; ok {
		names = append([]string{"pumpkin"}, names...)
	}

	for _, name := range names {
		if !strings.HasPrefix(name, "pumpkin") {
			continue
		}
		table, ok := deps[name].(map[string]any)
		if !ok {
			continue
		}
		git, _ := table["git"].(string)
		if git == "" {
			continue
		}
		decl := RuntimeDecl{Repository: git}
		for _, key := range []string{"rev", "tag", "branch"} {
			if ref, _ := table[key].(string); ref != "" {
				decl.Ref = ref
				break
			}
		}
		return decl
	}
	return RuntimeDecl{}
}
