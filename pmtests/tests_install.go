package pmtests

import (
	"github.com/jsconformance/contract-tests/lockfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noChangesPattern = `Checked \d+ installs? across \d+ packages? \(no changes\)`

func DoInstallTests(t *T) {
	t.Run("basic-1 from the registry", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.Contains(t, result.Stdout, "+ basic-1@1.0.0")
		assert.Contains(t, result.Stdout, "1 package installed")
		t.RequireFileContent("node_modules/basic-1/package.json", `{"name":"basic-1","version":"1.0.0"}`)
		assert.NotEmpty(t, t.Registry().RequestsFor("/basic-1"))
	})

	t.Run("reinstall after removing node_modules reproduces the tree", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo",
			"dependencies", deps("basic-1", "1.0.0", "uses-what-bin", "1.0.0")))
		t.RequireSuccess(t.RunPM("install"))
		before := t.ScanTree()
		lockBefore := t.ReadLockfile()

		t.RemoveNodeModules()
		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)

		assert.Empty(t, lockfile.DiffTrees(before, t.ScanTree()))
		assert.Equal(t, string(lockBefore), string(t.ReadLockfile()), "lockfile should not have been rewritten")
	})

	t.Run("second install reports no changes", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))
		t.RequireSuccess(t.RunPM("install"))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		assert.Regexp(t, noChangesPattern, result.Stdout)
		assert.NotContains(t, result.Stdout, "+ basic-1@1.0.0")
	})

	t.Run("--production skips devDependencies", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo",
			"dependencies", deps("basic-1", "1.0.0"),
			"devDependencies", deps("dev-only", "1.0.0")))

		result := t.RunPM("install", "--production")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireFile("node_modules/basic-1/package.json")
		t.RequireNoFile("node_modules/dev-only")
	})

	t.Run("--dry-run writes nothing", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))

		result := t.RunPM("install", "--dry-run")
		t.RequireSuccess(result)
		t.RequireNoFile("node_modules/basic-1")
		t.RequireNoFile(lockfile.TextFilename)
		t.RequireNoFile("bun.lockb")
	})

	t.Run("add saves a caret range", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo"))

		result := t.RunPM("add", "basic-1")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		spec, err := t.Dir().QueryString("package.json", `.dependencies["basic-1"]`)
		require.NoError(t, err)
		assert.Equal(t, "^1.0.0", spec)
		assert.Equal(t, "1.0.0", t.InstalledVersion("basic-1"))
	})

	t.Run("add --no-save leaves package.json untouched", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo"))
		original := t.ReadFile("package.json")

		result := t.RunPM("add", "basic-1@1.0.0", "--no-save")
		t.RequireSuccess(result)
		assert.Equal(t, original, t.ReadFile("package.json"))
		t.RequireFile("node_modules/basic-1/package.json")
	})

	t.Run("--frozen-lockfile fails when package.json changed", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))
		t.RequireSuccess(t.RunPM("install"))

		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0", "what-bin", "1.0.0")))
		result := t.RunPM("install", "--frozen-lockfile")
		t.RequireFailure(result, "lockfile had changes, but lockfile is frozen")
		t.RequireNoFile("node_modules/what-bin")
	})

	t.Run("--frozen-lockfile succeeds when nothing changed", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))
		t.RequireSuccess(t.RunPM("install"))
		t.RemoveNodeModules()

		result := t.RunPM("install", "--frozen-lockfile")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		t.RequireFile("node_modules/basic-1/package.json")
	})

	t.Run("optionalDependencies of a package are installed", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("has-optional", "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.Equal(t, "1.0.0", t.InstalledVersion("has-optional"))
		assert.Equal(t, "1.0.0", t.InstalledVersion(optionalPackage))
	})

	t.Run("deprecated version still installs", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(deprecatedPackage, "1.0.0")))

		result := t.RunPM("install")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.Equal(t, "1.0.0", t.InstalledVersion(deprecatedPackage))
		assert.NotEmpty(t, t.Registry().RequestsFor("/"+deprecatedPackage))
	})

	t.Run("missing package fails with 404", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("does-not-exist", "1.0.0")))

		result := t.RunPM("install")
		t.RequireFailure(result, "404")
		t.RequireNoFile("node_modules/does-not-exist")
	})
}
