package pmtests

import (
	"testing"

	"github.com/jsconformance/contract-tests/lockfile"
	"github.com/jsconformance/contract-tests/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesInOrder(t *testing.T) {
	output := "bun install v1.2.0\n\n+ basic-1@1.0.0\n\n1 package installed [12.00ms]\n"

	_, ok := linesInOrder(output, []string{"+ basic-1@1.0.0", "1 package installed"})
	assert.True(t, ok)

	missing, ok := linesInOrder(output, []string{"1 package installed", "+ basic-1@1.0.0"})
	assert.False(t, ok)
	assert.Equal(t, 1, missing)

	missing, ok = linesInOrder(output, []string{"bun install", "nope"})
	assert.False(t, ok)
	assert.Equal(t, 1, missing)

	_, ok = linesInOrder(output, nil)
	assert.True(t, ok)
}

func TestLinesInOrderDoesNotReuseALine(t *testing.T) {
	_, ok := linesInOrder("a b\n", []string{"a", "b"})
	assert.False(t, ok)
}

func TestPeakConcurrency(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		peak, starts, err := peakConcurrency("start\nend\nstart\nend\n")
		require.NoError(t, err)
		assert.Equal(t, 1, peak)
		assert.Equal(t, 2, starts)
	})

	t.Run("overlapping", func(t *testing.T) {
		peak, starts, err := peakConcurrency("start\nstart\nend\nstart\nstart\nend\nend\nend\n")
		require.NoError(t, err)
		assert.Equal(t, 3, peak)
		assert.Equal(t, 4, starts)
	})

	t.Run("more ends than starts", func(t *testing.T) {
		_, _, err := peakConcurrency("start\nend\nend\n")
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := peakConcurrency("start\nwhat\n")
		assert.Error(t, err)
	})
}

func TestFailurePatterns(t *testing.T) {
	assert.Regexp(t, noMatchingVersionPattern,
		`error: No version matching "^9.0.0" found for specifier "no-deps" (but package exists)`)
	assert.NotRegexp(t, noMatchingVersionPattern, `error: GET http://localhost/no-deps - 404`)

	assert.Regexp(t, otpFailurePattern, "error: This operation requires a one-time password")
	assert.Regexp(t, otpFailurePattern, "error: PUT http://localhost/publish-me - 401")
	assert.NotRegexp(t, otpFailurePattern, "error: PUT http://localhost/publish-me - 403")
}

func TestPackageJSON(t *testing.T) {
	v := packageJSON("name", "foo", "private", true,
		"dependencies", deps("a", "1.0.0", "b", "^2.0.0"),
		"trustedDependencies", []string{"a"})
	assert.JSONEq(t,
		`{"dependencies":{"a":"1.0.0","b":"^2.0.0"},"name":"foo","private":true,"trustedDependencies":["a"]}`,
		v.JSONString())

	assert.Panics(t, func() { packageJSON("name") })
	assert.Panics(t, func() { packageJSON("bin", make(chan int)) })
}

func TestCatalogBuildsIntoARegistry(t *testing.T) {
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)
	require.NoError(t, reg.AddPackages(Catalog()...))

	for _, name := range []string{"basic-1", "what-bin", "uses-what-bin", "lifecycle-postinstall", hoistShared} {
		assert.True(t, reg.HasVersion(name, "1.0.0"), name)
	}
	for _, name := range sleepPackages {
		assert.True(t, reg.HasVersion(name, "1.0.0"), name)
	}
	for _, name := range []string{optionalPackage, "has-optional", deprecatedPackage} {
		assert.True(t, reg.HasVersion(name, "1.0.0"), name)
	}
	assert.Equal(t, "2.1.0-beta.1", reg.DistTags("no-deps")["beta"])
	assert.Equal(t, "2.0.0", reg.DistTags("no-deps")["latest"])
}

func TestCatalogHoistingGroupsHaveAnAnswer(t *testing.T) {
	for _, group := range []map[string]string{hoistExactDependents, hoistRangeDependents, hoistEdgeDependents} {
		var constraints []string
		for _, c := range group {
			constraints = append(constraints, c)
		}
		_, err := lockfile.ExpectedHoist(constraints, hoistSharedVersions)
		assert.NoError(t, err, "%v", group)
	}
}
