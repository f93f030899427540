package bootstrap

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/spf13/afero"
)

// ScriptLoader reads provisioning scripts as opaque text.
type ScriptLoader struct {
	fs afero.Fs
}

// NewScriptLoader returns a loader reading from fsys.
func NewScriptLoader(fsys afero.Fs) *ScriptLoader {
	return &ScriptLoader{fs: fsys}
}

// NewEmbeddedLoader returns a loader over a read-only io/fs tree such as an
// embed.FS.
func NewEmbeddedLoader(fsys fs.FS) *ScriptLoader {
	return NewScriptLoader(afero.NewReadOnlyFs(afero.FromIOFS{FS: fsys}))
}

// NewDirLoader returns a loader rooted at dir on the local filesystem.
func NewDirLoader(dir string) *ScriptLoader {
	return NewScriptLoader(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir)))
}

// Load returns the content of the script at name.
func (l *ScriptLoader) Load(name string) (string, error) {
	b, err := afero.ReadFile(l.fs, path.Clean(name))
	if err != nil {
		return "", fmt.Errorf("failed to read script %s: %w", name, err)
	}
	return string(b), nil
}

// Discover lists the .sql files directly under dir in lexical order. Scripts
// named V1__..., V2__... therefore come back in version order as long as the
// version numbers have the same width.
func (l *ScriptLoader) Discover(dir string) ([]string, error) {
	matches, err := afero.Glob(l.fs, path.Join(path.Clean(dir), "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts in %s: %w", dir, err)
	}
	return matches, nil
}
