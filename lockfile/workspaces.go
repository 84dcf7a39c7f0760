package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// WorkspaceMembers expands the "workspaces" globs of a root package.json into the directories
// that contain a package.json, relative to root and slash-separated. Patterns starting with "!"
// exclude matches.
func WorkspaceMembers(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	members := make(map[string]bool)
	for _, p := range patterns {
		exclude := strings.HasPrefix(p, "!")
		p = path.Clean(strings.TrimPrefix(strings.TrimPrefix(p, "!"), "./"))
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("invalid workspace pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if strings.Contains("/"+m+"/", "/node_modules/") {
				continue
			}
			if exclude {
				delete(members, m)
				continue
			}
			if info, err := os.Stat(path.Join(root, m, "package.json")); err == nil && !info.IsDir() {
				members[m] = true
			}
		}
	}
	ret := make([]string, 0, len(members))
	for m := range members {
		ret = append(ret, m)
	}
	sort.Strings(ret)
	return ret, nil
}

// WorkspaceNames reads the package name of each member and returns a map of name to member
// path. Two members with the same name are an error, as they are for the package manager.
func WorkspaceNames(root string, members []string) (map[string]string, error) {
	names := make(map[string]string, len(members))
	for _, m := range members {
		data, err := os.ReadFile(path.Join(root, m, "package.json"))
		if err != nil {
			return nil, err
		}
		var id packageIdentity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("%s/package.json: %w", m, err)
		}
		if id.Name == "" {
			return nil, fmt.Errorf("%s/package.json has no name", m)
		}
		if other, ok := names[id.Name]; ok {
			return nil, fmt.Errorf("workspace name %q already exists in %s and %s", id.Name, other, m)
		}
		names[id.Name] = m
	}
	return names, nil
}
