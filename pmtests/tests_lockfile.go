package pmtests

import (
	"sort"

	"github.com/jsconformance/contract-tests/fixtures"
	"github.com/jsconformance/contract-tests/lockfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DoLockfileTests(t *T) {
	writeProject := func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo",
			"dependencies", deps("basic-1", "1.0.0", "what-bin", "1.0.0", "uses-what-bin", "1.0.0")))
	}

	t.Run("text lockfile matches node_modules", func(t *T) {
		writeProject(t)
		result := t.RunPM("install", "--save-text-lockfile")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireFile(lockfile.TextFilename)

		lock := t.ReadTextLockfile()
		assert.Empty(t, lockfile.CheckConsistency(lock, t.ScanTree()))
		assert.Equal(t, map[string]string{"basic-1": "1.0.0", "what-bin": "1.0.0", "uses-what-bin": "1.0.0"},
			lock.Workspaces[""].Dependencies)

		for _, key := range []string{"basic-1", "uses-what-bin", "what-bin"} {
			entry, ok := lock.Packages[key]
			if !assert.True(t, ok, "lockfile has no entry for %s", key) {
				continue
			}
			integrity, _ := t.Registry().Integrity(entry.Name(), entry.Version())
			assert.Equal(t, integrity, entry.Integrity, "integrity of %s", key)
		}
	})

	t.Run("saveTextLockfile in bunfig", func(t *T) {
		yes := true
		t.WriteBunfig(fixtures.Bunfig{Install: fixtures.InstallConfig{
			Registry:         &fixtures.RegistryConfig{URL: t.Registry().URL()},
			SaveTextLockfile: &yes,
		}})
		writeProject(t)

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireFile(lockfile.TextFilename)
		t.RequireNoFile("bun.lockb")
		assert.Empty(t, lockfile.CheckConsistency(t.ReadTextLockfile(), t.ScanTree()))
	})

	t.Run("round trip restores bins and tree", func(t *T) {
		writeProject(t)
		t.RequireSuccess(t.RunPM("install", "--save-text-lockfile"))
		require.NoError(t, lockfile.ValidBin(t.Dir().Path, "what-bin", "what-bin/what-bin.js"))
		before := t.ScanTree()

		t.RemoveNodeModules()
		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)

		assert.NoError(t, lockfile.ValidBin(t.Dir().Path, "what-bin", "what-bin/what-bin.js"))
		assert.Empty(t, lockfile.DiffTrees(before, t.ScanTree()))
		assert.Empty(t, lockfile.CheckConsistency(t.ReadTextLockfile(), t.ScanTree()))
	})

	t.Run("lockfile is not rewritten without dependency changes", func(t *T) {
		writeProject(t)
		t.RequireSuccess(t.RunPM("install", "--save-text-lockfile"))
		before := t.ReadFile(lockfile.TextFilename)

		result := t.RunPM("install")
		t.RequireSuccess(result)
		assert.Regexp(t, noChangesPattern, result.Stdout)
		assert.Equal(t, before, t.ReadFile(lockfile.TextFilename))
	})

	t.Run("adding a dependency updates the lockfile", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))
		t.RequireSuccess(t.RunPM("install", "--save-text-lockfile"))

		t.RequireSuccess(t.RunPM("add", "no-deps@1.0.1"))
		lock := t.ReadTextLockfile()
		var keys []string
		for k := range lock.Packages {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		assert.Equal(t, []string{"basic-1", "no-deps"}, keys)
		assert.Equal(t, "no-deps@1.0.1", lock.Packages["no-deps"].Resolution)
		assert.Empty(t, lockfile.CheckConsistency(lock, t.ScanTree()))
	})
}

func DoHoistingTests(t *T) {
	run := func(t *T, dependents map[string]string) {
		var names, constraints []string
		for name, constraint := range dependents {
			names = append(names, name)
			constraints = append(constraints, constraint)
		}
		sort.Strings(names)
		pkgDeps := make(map[string]interface{})
		for _, n := range names {
			pkgDeps[n] = "1.0.0"
		}
		expected, err := lockfile.ExpectedHoist(constraints, t.Registry().Versions(hoistShared))
		require.NoError(t, err)
		t.Debug("expecting %s@%s to be hoisted", hoistShared, expected)

		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", pkgDeps))
		result := t.RunPM("install", "--save-text-lockfile")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)

		assert.Equal(t, expected, t.InstalledVersion(hoistShared))
		tree := t.ScanTree()
		for _, n := range names {
			nested, ok := tree[n+"/"+hoistShared]
			if dependents[n] == expected {
				assert.False(t, ok, "%s should use the hoisted copy, but has %s", n, nested)
			}
		}
		assert.Empty(t, lockfile.CheckConsistency(t.ReadTextLockfile(), tree))
	}

	t.Run("distinct exact versions hoist the highest", func(t *T) {
		run(t, hoistExactDependents)
		tree := t.ScanTree()
		assert.Equal(t, hoistShared+"@1.0.1", tree["hoist-exact-1/"+hoistShared])
		assert.Equal(t, hoistShared+"@1.0.2", tree["hoist-exact-2/"+hoistShared])
	})

	t.Run("version satisfying the most ranges is hoisted", func(t *T) {
		run(t, hoistRangeDependents)
	})

	t.Run("hoisted version is not requested exactly by anyone", func(t *T) {
		run(t, hoistEdgeDependents)
		for name := range hoistEdgeDependents {
			_, nested := t.ScanTree()[name+"/"+hoistShared]
			assert.False(t, nested, "%s should not have a nested copy", name)
		}
	})
}
