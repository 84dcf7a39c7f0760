package pmtests

import (
	"github.com/jsconformance/contract-tests/lockfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var workspacePatterns = []string{"packages/*"}

func writeWorkspaces(t *T, members map[string]interface{}) {
	t.WritePackageJSON(packageJSON("name", "root", "workspaces", workspacePatterns))
	for dir, pkg := range members {
		member, err := t.Dir().Sub(dir)
		require.NoError(t, err)
		require.NoError(t, member.WritePackageJSON(pkg))
	}
}

func DoWorkspaceTests(t *T) {
	t.Run("glob members are linked", func(t *T) {
		writeWorkspaces(t, map[string]interface{}{
			"packages/a": packageJSON("name", "a", "version", "1.0.0"),
			"packages/b": packageJSON("name", "b", "version", "1.0.0",
				"dependencies", deps("a", "workspace:*", "basic-1", "1.0.0")),
		})

		result := t.RunPM("install", "--save-text-lockfile")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)

		members, err := lockfile.WorkspaceMembers(t.Dir().Path, workspacePatterns)
		require.NoError(t, err)
		names, err := lockfile.WorkspaceNames(t.Dir().Path, members)
		require.NoError(t, err)
		tree := t.ScanTree()
		for name, path := range names {
			assert.True(t, t.Dir().IsSymlink("node_modules/"+name), "%s should be linked", name)
			assert.Equal(t, name+"@workspace:"+path, tree[name])
		}
		assert.Equal(t, "1.0.0", t.InstalledVersion("basic-1"))

		lock := t.ReadTextLockfile()
		assert.Equal(t, "a", lock.Workspaces["packages/a"].Name)
		assert.Equal(t, "workspace:*", lock.Workspaces["packages/b"].Dependencies["a"])
		assert.True(t, lock.Packages["a"].IsWorkspace())
		assert.Empty(t, lockfile.CheckConsistency(lock, tree))
	})

	t.Run("duplicate workspace names fail", func(t *T) {
		writeWorkspaces(t, map[string]interface{}{
			"packages/one": packageJSON("name", "same", "version", "1.0.0"),
			"packages/two": packageJSON("name", "same", "version", "1.0.0"),
		})
		members, err := lockfile.WorkspaceMembers(t.Dir().Path, workspacePatterns)
		require.NoError(t, err)
		_, err = lockfile.WorkspaceNames(t.Dir().Path, members)
		require.Error(t, err)

		t.RequireFailure(t.RunPM("install"), "already exists")
	})

	t.Run("--filter installs a subset", func(t *T) {
		writeWorkspaces(t, map[string]interface{}{
			"packages/a": packageJSON("name", "a", "version", "1.0.0", "dependencies", deps("basic-1", "1.0.0")),
			"packages/b": packageJSON("name", "b", "version", "1.0.0", "dependencies", deps("what-bin", "1.0.0")),
		})

		result := t.RunPM("install", "--filter", "a")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireFile("node_modules/basic-1/package.json")
		t.RequireNoFile("node_modules/what-bin")
	})

	t.Run("workspace dependency on a registry package is hoisted to the root", func(t *T) {
		writeWorkspaces(t, map[string]interface{}{
			"packages/a": packageJSON("name", "a", "version", "1.0.0", "dependencies", deps("uses-what-bin", "1.0.0")),
		})

		t.RequireSuccess(t.RunPM("install"))
		assert.Equal(t, "1.0.0", t.InstalledVersion("uses-what-bin"))
		assert.Equal(t, "1.0.0", t.InstalledVersion("what-bin"))
		t.RequireNoFile("packages/a/node_modules/uses-what-bin")
	})

	t.Run("conflicting version stays in the workspace's node_modules", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "root", "workspaces", workspacePatterns,
			"dependencies", deps("no-deps", "1.0.0")))
		member, err := t.Dir().Sub("packages/b")
		require.NoError(t, err)
		require.NoError(t, member.WritePackageJSON(packageJSON("name", "b", "version", "1.0.0",
			"dependencies", deps("no-deps", "2.0.0"))))

		result := t.RunPM("install", "--save-text-lockfile")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)

		assert.Equal(t, "1.0.0", t.InstalledVersion("no-deps"))
		assert.Equal(t, "2.0.0", t.ReadJSON("packages/b/node_modules/no-deps/package.json").GetByKey("version").StringValue())
		tree := t.ScanTree()
		assert.Equal(t, "no-deps@2.0.0", tree["b/no-deps"])
		assert.Empty(t, lockfile.CheckConsistency(t.ReadTextLockfile(), tree))
	})
}
