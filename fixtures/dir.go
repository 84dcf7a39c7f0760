package fixtures

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	helpers "github.com/launchdarkly/go-test-helpers/v2"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Dir is a package directory on disk. All paths passed to its methods are relative to Path and
// use forward slashes.
type Dir struct {
	Path string
}

// NewTempDir creates an empty directory under the system temp directory. The caller is
// responsible for calling Remove.
func NewTempDir(prefix string) (*Dir, error) {
	path, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, err
	}
	// macOS returns a path under a symlinked /var; package managers print the resolved one.
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return &Dir{Path: path}, nil
}

// Sub returns a Dir for a subdirectory, creating it if necessary.
func (d *Dir) Sub(rel string) (*Dir, error) {
	path := d.Join(rel)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Dir{Path: path}, nil
}

// Join returns the absolute path of a file in the directory.
func (d *Dir) Join(rel ...string) string {
	parts := []string{d.Path}
	for _, r := range rel {
		parts = append(parts, filepath.FromSlash(r))
	}
	return filepath.Join(parts...)
}

func (d *Dir) WriteFile(rel, content string) error {
	return d.writeFile(rel, []byte(content), 0o644)
}

// WriteExecutable writes a file with the executable bits set.
func (d *Dir) WriteExecutable(rel, content string) error {
	return d.writeFile(rel, []byte(content), 0o755)
}

func (d *Dir) writeFile(rel string, data []byte, mode os.FileMode) error {
	path := d.Join(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("could not write %s: %w", rel, err)
	}
	return nil
}

// WriteJSON writes any JSON-marshalable value, including ldvalue.Value, with two-space
// indentation.
func (d *Dir) WriteJSON(rel string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return d.writeFile(rel, append(data, '\n'), 0o644)
}

func (d *Dir) WritePackageJSON(value interface{}) error {
	return d.WriteJSON("package.json", value)
}

func (d *Dir) WriteBunfig(b Bunfig) error {
	s, err := b.Encode()
	if err != nil {
		return err
	}
	return d.WriteFile("bunfig.toml", s)
}

func (d *Dir) WriteNpmrc(n Npmrc) error {
	return d.WriteFile(".npmrc", n.String())
}

func (d *Dir) ReadFile(rel string) (string, error) {
	data, err := os.ReadFile(d.Join(rel))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON parses a JSON file. The package manager's own files are plain JSON, so this does not
// accept trailing commas; use the lockfile package for bun.lock.
func (d *Dir) ReadJSON(rel string) (ldvalue.Value, error) {
	data, err := os.ReadFile(d.Join(rel))
	if err != nil {
		return ldvalue.Null(), err
	}
	var v ldvalue.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return ldvalue.Null(), fmt.Errorf("%s is not valid JSON: %w", rel, err)
	}
	return v, nil
}

func (d *Dir) Exists(rel string) bool {
	return helpers.FilePathExists(d.Join(rel))
}

// IsSymlink reports whether the path itself is a symbolic link.
func (d *Dir) IsSymlink(rel string) bool {
	info, err := os.Lstat(d.Join(rel))
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// RemoveAll deletes a file or directory inside the package directory. A missing path is not an
// error.
func (d *Dir) RemoveAll(rel string) error {
	err := os.RemoveAll(d.Join(rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Remove deletes the whole directory. Failures are ignored, since some package managers leave
// read-only files behind.
func (d *Dir) Remove() {
	_ = os.RemoveAll(d.Path)
}
