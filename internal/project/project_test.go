package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const pluginManifest = `
[package]
name = "hello-plugin"
version = "0.1.0"

[lib]
crate-type = ["cdylib"]

[dependencies]
serde = "1"
pumpkin = { git = "https://github.com/Pumpkin-MC/Pumpkin.git", branch = "master", package = "pumpkin" }
pumpkin-util = { git = "https://github.com/example/other.git", rev = "abc123" }
`

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_CurrentDir(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, pluginManifest)

	m, err := Resolve(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Path != path {
		t.Errorf("path: got %q, want %q", m.Path, path)
	}
	if m.Root != dir {
		t.Errorf("root: got %q, want %q", m.Root, dir)
	}
	if m.Name != "hello-plugin" {
		t.Errorf("name: got %q", m.Name)
	}
	if m.LibName != "hello_plugin" {
		t.Errorf("lib name: got %q, want hello_plugin", m.LibName)
	}
	if m.Runtime.Repository != "https://github.com/Pumpkin-MC/Pumpkin.git" {
		t.Errorf("repository: got %q", m.Runtime.Repository)
	}
	if m.Runtime.Ref != "master" {
		t.Errorf("ref: got %q, want master", m.Runtime.Ref)
	}
}

func TestResolve_WalksUp(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, pluginManifest)
	nested := filepath.Join(dir, "src", "commands")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := Resolve(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Root != dir {
		t.Errorf("root: got %q, want %q", m.Root, dir)
	}
}

func TestResolve_SkipsVirtualWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[workspace]\nmembers = [\"plugin\"]\n")
	member := filepath.Join(dir, "plugin")
	if err := os.Mkdir(member, 0o755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, member, pluginManifest)

	m, err := Resolve(member)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Root != member {
		t.Errorf("root: got %q, want %q", m.Root, member)
	}

	// Starting at the workspace root finds nothing usable.
	if _, err := Resolve(dir); !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound from workspace root, got %v", err)
	}
}

func TestResolve_NotFound(t *testing.T) {
	_, err := Resolve(t.TempDir())
	if !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestResolve_MalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[package\nname = ")

	_, err := Resolve(dir)
	if !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestLoad_LibNameOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
[package]
name = "my-plugin"

[lib]
name = "custom-lib"
crate-type = ["cdylib", "rlib"]
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.LibName != "custom_lib" {
		t.Errorf("lib name: got %q, want custom_lib", m.LibName)
	}
	if len(m.CrateTypes) != 2 {
		t.Errorf("crate types: got %v", m.CrateTypes)
	}
	if m.Runtime != (RuntimeDecl{}) {
		t.Errorf("expected empty runtime decl, got %+v", m.Runtime)
	}
}

func TestLoad_MetadataOverridesDependency(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
[package]
name = "p"

[package.metadata.pumpkin]
ref = "v0.2.0"
profile = "release"

[dependencies]
pumpkin = { git = "https://github.com/Pumpkin-MC/Pumpkin.git", tag = "v0.1.0" }
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := RuntimeDecl{
		Repository: "https://github.com/Pumpkin-MC/Pumpkin.git",
		Ref:        "v0.2.0",
		Profile:    "release",
	}
	if m.Runtime != want {
		t.Errorf("runtime: got %+v, want %+v", m.Runtime, want)
	}
}

func TestDependencyDecl(t *testing.T) {
	tests := []struct {
		name string
		deps map[string]any
		want RuntimeDecl
	}{
		{"none", nil, RuntimeDecl{}},
		{"version only", map[string]any{"pumpkin": "0.1"}, RuntimeDecl{}},
		{
			"rev wins over branch",
			map[string]any{"pumpkin": map[string]any{"git": "g", "rev": "r", "branch": "b"}},
			RuntimeDecl{Repository: "g", Ref: "r"},
		},
		{
			"sub crate fallback",
			map[string]any{"pumpkin-api-macros": map[string]any{"git": "g", "tag": "t"}},
			RuntimeDecl{Repository: "g", Ref: "t"},
		},
		{
			"unrelated git dep ignored",
			map[string]any{"serde": map[string]any{"git": "s"}},
			RuntimeDecl{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dependencyDecl(tt.deps); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
