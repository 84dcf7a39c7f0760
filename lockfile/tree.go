package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Tree maps a tree key to the resolution installed there. A tree key is the chain of package
// names from the root node_modules, joined with "/": "a" for node_modules/a, and "a/@s/b" for
// node_modules/a/node_modules/@s/b. Workspace links resolve to "name@workspace:<path>".
type Tree map[string]string

type packageIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ScanTree walks root/node_modules. A link to a workspace inside root is recorded as
// "name@workspace:<path>", and the workspace's own node_modules is scanned beneath it, so
// node_modules/b -> packages/b puts packages/b/node_modules/foo at "b/foo".
func ScanTree(root string) (Tree, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	s := &treeScanner{realRoot: realRoot, tree: make(Tree), linked: make(map[string]bool)}
	if err := s.scanNodeModules(filepath.Join(root, "node_modules"), ""); err != nil {
		return nil, err
	}
	return s.tree, nil
}

type treeScanner struct {
	realRoot string
	tree     Tree
	linked   map[string]bool // workspace directories already scanned through a link
}

func (s *treeScanner) scanNodeModules(dir, parentKey string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasPrefix(name, "@") && entry.IsDir() {
			scoped, err := os.ReadDir(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			for _, sc := range scoped {
				if err := s.scanPackage(filepath.Join(dir, name, sc.Name()), name+"/"+sc.Name(), parentKey); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.scanPackage(filepath.Join(dir, name), name, parentKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *treeScanner) scanPackage(path, name, parentKey string) error {
	key := name
	if parentKey != "" {
		key = parentKey + "/" + name
	}
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return s.scanLink(path, name, key)
	}
	if !info.IsDir() {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return fmt.Errorf("installed package %s has no package.json: %w", key, err)
	}
	var id packageIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("installed package %s has an invalid package.json: %w", key, err)
	}
	s.tree[key] = name + "@" + id.Version
	return s.scanNodeModules(filepath.Join(path, "node_modules"), key)
}

func (s *treeScanner) scanLink(path, name, key string) error {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("broken link %s: %w", path, err)
	}
	rel, err := filepath.Rel(s.realRoot, target)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)
	s.tree[key] = name + "@workspace:" + rel
	if rel == ".." || strings.HasPrefix(rel, "../") || s.linked[target] {
		return nil
	}
	s.linked[target] = true
	return s.scanNodeModules(filepath.Join(target, "node_modules"), key)
}

// CheckConsistency compares a lockfile with an installed tree and describes every difference.
// An empty result means the two agree.
func CheckConsistency(lock *TextLockfile, tree Tree) []string {
	expected := lock.Tree()
	var problems []string
	for key, want := range expected {
		got, ok := tree[key]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s: lockfile has %s but node_modules does not", key, want))
		case got != want:
			problems = append(problems, fmt.Sprintf("%s: lockfile has %s but node_modules has %s", key, want, got))
		}
	}
	for key, got := range tree {
		if _, ok := expected[key]; !ok {
			problems = append(problems, fmt.Sprintf("%s: node_modules has %s but lockfile does not", key, got))
		}
	}
	sort.Strings(problems)
	return problems
}

// DiffTrees returns a human-readable diff between two trees, or "" if they are equal.
func DiffTrees(want, got Tree) string {
	return cmp.Diff(want, got)
}
