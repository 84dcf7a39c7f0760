package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLockfile = `{
  "lockfileVersion": 1,
  "workspaces": {
    "": {
      "name": "root",
      "dependencies": {
        "a": "workspace:*",
        "what-bin": "1.0.0",
      },
    },
    "packages/a": {
      "name": "a",
      "version": "0.0.1",
    },
  },
  "packages": {
    "a": ["a@workspace:packages/a"],
    "what-bin": ["what-bin@1.0.0", "", { "bin": { "what-bin": "what-bin.js" } }, "sha512-abc"],
    "what-bin/@s/dep": ["@s/dep@2.0.0", "http://localhost/@s/dep/-/dep-2.0.0.tgz", {}, "sha512-def"],
  },
}
`

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseText(t *testing.T) {
	lock, err := ParseText([]byte(sampleLockfile))
	require.NoError(t, err)

	assert.Equal(t, 1, lock.LockfileVersion)
	assert.Equal(t, "root", lock.Workspaces[""].Name)
	assert.Equal(t, "0.0.1", lock.Workspaces["packages/a"].Version)

	a := lock.Packages["a"]
	assert.True(t, a.IsWorkspace())
	assert.Equal(t, "a", a.Name())
	assert.Equal(t, "workspace:packages/a", a.Version())

	bin := lock.Packages["what-bin"]
	assert.False(t, bin.IsWorkspace())
	assert.Equal(t, "", bin.Tarball)
	assert.Equal(t, "sha512-abc", bin.Integrity)
	assert.Contains(t, bin.Info, "bin")

	dep := lock.Packages["what-bin/@s/dep"]
	assert.Equal(t, "@s/dep", dep.Name())
	assert.Equal(t, "2.0.0", dep.Version())
	assert.Equal(t, "http://localhost/@s/dep/-/dep-2.0.0.tgz", dep.Tarball)
}

func TestParseTextRejectsGarbage(t *testing.T) {
	_, err := ParseText([]byte("{ not json"))
	assert.Error(t, err)
	_, err = ParseText([]byte(`{"packages": {"a": []}}`))
	assert.Error(t, err)
}

func TestScanTreeAndConsistency(t *testing.T) {
	dir := t.TempDir()
	root, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name":"a","version":"0.0.1"}`)
	writeFile(t, filepath.Join(root, "node_modules", "what-bin", "package.json"), `{"name":"what-bin","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "node_modules", "what-bin", "node_modules", "@s", "dep", "package.json"),
		`{"name":"@s/dep","version":"2.0.0"}`)
	require.NoError(t, os.Symlink(filepath.Join("..", "packages", "a"), filepath.Join(root, "node_modules", "a")))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", ".bin"), 0o755))

	tree, err := ScanTree(root)
	require.NoError(t, err)
	assert.Equal(t, Tree{
		"a":               "a@workspace:packages/a",
		"what-bin":        "what-bin@1.0.0",
		"what-bin/@s/dep": "@s/dep@2.0.0",
	}, tree)

	lock, err := ParseText([]byte(sampleLockfile))
	require.NoError(t, err)
	assert.Empty(t, CheckConsistency(lock, tree))
	assert.Empty(t, DiffTrees(lock.Tree(), tree))

	tree["what-bin"] = "what-bin@1.0.1"
	tree["extra"] = "extra@1.0.0"
	delete(tree, "a")
	assert.Equal(t, []string{
		"a: lockfile has a@workspace:packages/a but node_modules does not",
		"extra: node_modules has extra@1.0.0 but lockfile does not",
		"what-bin: lockfile has what-bin@1.0.0 but node_modules has what-bin@1.0.1",
	}, CheckConsistency(lock, tree))
	assert.NotEmpty(t, DiffTrees(lock.Tree(), tree))
}

func TestScanTreeIncludesWorkspaceNodeModules(t *testing.T) {
	dir := t.TempDir()
	root, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"), `{"name":"b"}`)
	writeFile(t, filepath.Join(root, "packages", "b", "node_modules", "foo", "package.json"),
		`{"name":"foo","version":"2.0.0"}`)
	writeFile(t, filepath.Join(root, "node_modules", "foo", "package.json"), `{"name":"foo","version":"1.0.0"}`)
	require.NoError(t, os.Symlink(filepath.Join("..", "packages", "b"), filepath.Join(root, "node_modules", "b")))
	// b links back to itself; the scan must not loop
	require.NoError(t, os.Symlink("..", filepath.Join(root, "packages", "b", "node_modules", "b")))

	tree, err := ScanTree(root)
	require.NoError(t, err)
	assert.Equal(t, Tree{
		"b":     "b@workspace:packages/b",
		"b/b":   "b@workspace:packages/b",
		"b/foo": "foo@2.0.0",
		"foo":   "foo@1.0.0",
	}, tree)

	lock, err := ParseText([]byte(`{
  "lockfileVersion": 1,
  "workspaces": {
    "": { "name": "root", "dependencies": { "b": "workspace:*", "foo": "1.0.0" } },
    "packages/b": { "name": "b", "dependencies": { "foo": "2.0.0" } },
  },
  "packages": {
    "b": ["b@workspace:packages/b"],
    "b/b": ["b@workspace:packages/b"],
    "b/foo": ["foo@2.0.0", "", {}, "sha512-two"],
    "foo": ["foo@1.0.0", "", {}, "sha512-one"],
  },
}`))
	require.NoError(t, err)
	assert.Empty(t, CheckConsistency(lock, tree))
}

func TestScanTreeWithoutNodeModules(t *testing.T) {
	dir := t.TempDir()
	tree, err := ScanTree(dir)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestExpectedHoist(t *testing.T) {
	t.Run("distinct exact versions pick the highest", func(t *testing.T) {
		v, err := ExpectedHoist([]string{"1.0.1", "1.0.3", "1.0.2"}, []string{"1.0.1", "1.0.2", "1.0.3"})
		require.NoError(t, err)
		assert.Equal(t, "1.0.3", v)
	})

	t.Run("most satisfied constraints win over highest", func(t *testing.T) {
		v, err := ExpectedHoist([]string{"1.0.1", "~1.0.1", "<=1.0.1", "1.0.3"}, []string{"1.0.1", "1.0.2", "1.0.3"})
		require.NoError(t, err)
		assert.Equal(t, "1.0.1", v)
	})

	t.Run("expected version need not be requested exactly", func(t *testing.T) {
		v, err := ExpectedHoist([]string{">=1.0.1", "^1.0.0", "1.0.1"}, []string{"1.0.1", "1.0.2"})
		require.NoError(t, err)
		assert.Equal(t, "1.0.1", v)

		v, err = ExpectedHoist([]string{">=1.0.1", "^1.0.0"}, []string{"1.0.1", "1.0.2"})
		require.NoError(t, err)
		assert.Equal(t, "1.0.2", v)
	})

	t.Run("nothing satisfies", func(t *testing.T) {
		_, err := ExpectedHoist([]string{"2.0.0"}, []string{"1.0.0"})
		assert.Error(t, err)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := ExpectedHoist([]string{"not a range!"}, []string{"1.0.0"})
		assert.Error(t, err)
	})
}

func TestMaxSatisfying(t *testing.T) {
	available := []string{"1.0.0", "1.1.0", "1.2.0-beta.1", "2.0.0"}
	for _, tc := range []struct{ constraint, want string }{
		{"^1.0.0", "1.1.0"},
		{"~1.0.0", "1.0.0"},
		{">=1.0.0", "2.0.0"},
		{"1.x", "1.1.0"},
		{"^2.0.0 || ~1.0.0", "2.0.0"},
	} {
		got, ok := MaxSatisfying(tc.constraint, available)
		assert.True(t, ok, tc.constraint)
		assert.Equal(t, tc.want, got, tc.constraint)
	}
	_, ok := MaxSatisfying("^3.0.0", available)
	assert.False(t, ok)
}

func TestWorkspaceMembers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name":"a"}`)
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"), `{"name":"b"}`)
	writeFile(t, filepath.Join(root, "packages", "nested", "c", "package.json"), `{"name":"c"}`)
	writeFile(t, filepath.Join(root, "packages", "empty", "README.md"), "")
	writeFile(t, filepath.Join(root, "packages", "b", "node_modules", "x", "package.json"), `{"name":"x"}`)

	members, err := WorkspaceMembers(root, []string{"packages/*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/a", "packages/b"}, members)

	members, err = WorkspaceMembers(root, []string{"./packages/**", "!packages/b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/a", "packages/nested/c"}, members)

	names, err := WorkspaceNames(root, []string{"packages/a", "packages/nested/c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "packages/a", "c": "packages/nested/c"}, names)
}

func TestWorkspaceNamesRejectsDuplicates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one", "package.json"), `{"name":"same"}`)
	writeFile(t, filepath.Join(root, "two", "package.json"), `{"name":"same"}`)
	_, err := WorkspaceNames(root, []string{"one", "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestValidBin(t *testing.T) {
	dir := t.TempDir()
	root, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	script := filepath.Join(root, "node_modules", "what-bin", "what-bin.js")
	writeFile(t, script, "#!/usr/bin/env node\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", ".bin"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join("..", "what-bin", "what-bin.js"),
		filepath.Join(root, "node_modules", ".bin", "what-bin")))

	target, err := BinLink(root, "what-bin")
	require.NoError(t, err)
	assert.Equal(t, script, target)

	err = ValidBin(root, "what-bin", "what-bin/what-bin.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not executable")

	require.NoError(t, os.Chmod(script, 0o755))
	assert.NoError(t, ValidBin(root, "what-bin", "what-bin/what-bin.js"))
	assert.Error(t, ValidBin(root, "what-bin", "other/other.js"))
	assert.Error(t, ValidBin(root, "missing", "what-bin/what-bin.js"))
}
