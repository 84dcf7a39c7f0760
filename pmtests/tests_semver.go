package pmtests

import (
	"github.com/jsconformance/contract-tests/lockfile"
	"github.com/jsconformance/contract-tests/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	updatePackage            = "update-me"
	noMatchingVersionPattern = `(?i)no version matching`
)

func DoSemverTests(t *T) {
	ranges := []string{
		"^1.0.0",
		"~1.0.0",
		">=1.0.0",
		">=1.0.0 <2.0.0",
		"^1.0.0 || ^2.0.0",
		"1.x",
		"1.0.x",
		"*",
	}
	for _, r := range ranges {
		r := r
		t.Run("range "+r, func(t *T) {
			expected, ok := lockfile.MaxSatisfying(r, t.Registry().Versions("no-deps"))
			require.True(t, ok)
			t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("no-deps", r)))

			result := t.RunPM("install")
			t.RequireSuccess(result)
			t.RequireNoErrors(result)
			assert.Equal(t, expected, t.InstalledVersion("no-deps"))
		})
	}

	for _, tag := range []string{"latest", "beta"} {
		tag := tag
		t.Run("dist-tag "+tag, func(t *T) {
			expected := t.Registry().DistTags("no-deps")[tag]
			require.NotEmpty(t, expected)
			t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("no-deps", tag)))

			t.RequireSuccess(t.RunPM("install"))
			assert.Equal(t, expected, t.InstalledVersion("no-deps"))
		})
	}

	t.Run("prerelease is not selected by a plain range", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("no-deps", ">=2.0.0")))

		t.RequireSuccess(t.RunPM("install"))
		assert.Equal(t, "2.0.0", t.InstalledVersion("no-deps"))
	})

	t.Run("prerelease range selects the prerelease", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("no-deps", ">=2.1.0-beta.0")))

		t.RequireSuccess(t.RunPM("install"))
		assert.Equal(t, "2.1.0-beta.1", t.InstalledVersion("no-deps"))
	})

	t.Run("unsatisfiable range fails", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("no-deps", "^9.0.0")))

		result := t.RunPM("install")
		t.RequireFailureMatching(result, noMatchingVersionPattern)
		assert.Contains(t, result.Stderr, "no-deps")
		t.RequireNoFile("node_modules/no-deps")
	})
}

func DoUpdateTests(t *T) {
	// Starts with only 1.0.0 and 1.0.1 published, installs ^1.0.0, then publishes newer
	// versions.
	setup := func(t *T) *registry.Registry {
		reg := t.Registry()
		require.NoError(t, reg.AddPackages(
			registry.PackageVersion{Name: updatePackage, Version: "1.0.0"},
			registry.PackageVersion{Name: updatePackage, Version: "1.0.1"},
		))
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps(updatePackage, "^1.0.0")))
		t.RequireSuccess(t.RunPM("install"))
		require.Equal(t, "1.0.1", t.InstalledVersion(updatePackage))

		require.NoError(t, reg.AddPackages(
			registry.PackageVersion{Name: updatePackage, Version: "1.1.0"},
			registry.PackageVersion{Name: updatePackage, Version: "2.0.0"},
		))
		t.ClearCache()
		return reg
	}

	t.Run("update stays within the range", func(t *T) {
		setup(t)

		result := t.RunPM("update")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.Equal(t, "1.1.0", t.InstalledVersion(updatePackage))
		spec, err := t.Dir().QueryString("package.json", ".dependencies[\""+updatePackage+"\"]")
		require.NoError(t, err)
		assert.Regexp(t, `^\^1\.`, spec)
	})

	t.Run("update --latest rewrites the range", func(t *T) {
		setup(t)

		result := t.RunPM("update", "--latest")
		t.RequireSuccess(result)
		t.RequireNoErrors(result)
		assert.Equal(t, "2.0.0", t.InstalledVersion(updatePackage))
		spec, err := t.Dir().QueryString("package.json", ".dependencies[\""+updatePackage+"\"]")
		require.NoError(t, err)
		assert.Equal(t, "^2.0.0", spec)
	})

	t.Run("outdated lists the package", func(t *T) {
		setup(t)

		result := t.RunPM("outdated")
		t.RequireNoErrors(result)
		t.RequireLinesInOrder(result.Stdout, updatePackage)
		assert.Contains(t, result.Stdout, "1.0.1")
		assert.Contains(t, result.Stdout, "1.1.0")
		assert.Contains(t, result.Stdout, "2.0.0")
	})

	t.Run("outdated is empty when up to date", func(t *T) {
		t.WritePackageJSON(packageJSON("name", "foo", "dependencies", deps("basic-1", "1.0.0")))
		t.RequireSuccess(t.RunPM("install"))

		result := t.RunPM("outdated")
		t.RequireSuccess(result)
		assert.NotContains(t, result.Stdout, "basic-1")
	})
}
