// Package lockfile reads the text lockfile (bun.lock) and the installed node_modules tree, and
// computes what a correct install should have produced.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"
)

// TextFilename is the name of the text lockfile in a package directory.
const TextFilename = "bun.lock"

// TextLockfile is the parsed content of bun.lock.
type TextLockfile struct {
	LockfileVersion int `json:"lockfileVersion"`
	// Workspaces is keyed by workspace path relative to the root; the root itself is "".
	Workspaces          map[string]Workspace    `json:"workspaces"`
	Packages            map[string]PackageEntry `json:"packages"`
	TrustedDependencies []string                `json:"trustedDependencies"`
}

type Workspace struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

// PackageEntry is one element of the "packages" map. On disk it is an array whose first element
// is the resolution ("name@version" or "name@workspace:path"); registry packages are followed
// by the tarball URL (often empty), an info object, and the integrity hash.
type PackageEntry struct {
	Resolution string
	Tarball    string
	Info       map[string]interface{}
	Integrity  string
}

func (e *PackageEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("empty package entry")
	}
	if err := json.Unmarshal(raw[0], &e.Resolution); err != nil {
		return fmt.Errorf("package resolution: %w", err)
	}
	for _, r := range raw[1:] {
		trimmed := strings.TrimSpace(string(r))
		switch {
		case strings.HasPrefix(trimmed, "{"):
			if err := json.Unmarshal(r, &e.Info); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, `"`):
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
			if e.Info != nil {
				e.Integrity = s
			} else {
				e.Tarball = s
			}
		}
	}
	return nil
}

// Name returns the package name part of the resolution.
func (e PackageEntry) Name() string {
	name, _ := splitResolution(e.Resolution)
	return name
}

// Version returns the version part of the resolution, such as "1.0.0" or "workspace:packages/a".
func (e PackageEntry) Version() string {
	_, version := splitResolution(e.Resolution)
	return version
}

func (e PackageEntry) IsWorkspace() bool {
	return strings.HasPrefix(e.Version(), "workspace:")
}

func splitResolution(res string) (name, version string) {
	if len(res) < 2 {
		return res, ""
	}
	i := strings.Index(res[1:], "@")
	if i < 0 {
		return res, ""
	}
	return res[:i+1], res[i+2:]
}

// ParseText parses bun.lock, which is JSON that allows trailing commas.
func ParseText(data []byte) (*TextLockfile, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("lockfile is not valid JSON: %w", err)
	}
	var lock TextLockfile
	if err := json.Unmarshal(std, &lock); err != nil {
		return nil, fmt.Errorf("unexpected lockfile structure: %w", err)
	}
	return &lock, nil
}

func ReadText(path string) (*TextLockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseText(data)
}

// Tree returns the install tree that the lockfile describes, in the same form as ScanTree.
func (l *TextLockfile) Tree() Tree {
	tree := make(Tree, len(l.Packages))
	for key, entry := range l.Packages {
		tree[key] = entry.Resolution
	}
	return tree
}
