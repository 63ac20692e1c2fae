package rundir

import (
	"fmt"
	"os"
	"path/filepath"
)

// InstallPlugin copies a freshly built plugin into the plugin directory,
// replacing any previous build of the same file. The copy is renamed into
// place so a running runtime never sees a truncated library.
func (d *Dir) InstallPlugin(src string) (string, error) {
	dst := filepath.Join(d.PluginsPath(), filepath.Base(src))
	if err := copyFileAtomic(src, dst, execMode); err != nil {
		return "", fmt.Errorf("install plugin %s: %w", filepath.Base(src), err)
	}
	return dst, nil
}

// PluginArtifact returns the installed plugin with the given file name.
func (d *Dir) PluginArtifact(fileName string) (string, error) {
	path := filepath.Join(d.PluginsPath(), fileName)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrPluginArtifactMissing, path)
	}
	return path, nil
}
