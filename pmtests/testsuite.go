package pmtests

import (
	"github.com/jsconformance/contract-tests/framework"
)

// SuiteName qualifies test paths for filtering, as in "pm/install/basic-1 from the registry".
const SuiteName = "pm"

func RunTestSuite(
	harness *framework.TestHarness,
	config Config,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := newTestScope(c, harness, config)

		t.Run("install", DoInstallTests)
		t.Run("bunfig", DoBunfigTests)
		t.Run("npmrc", DoNpmrcTests)
		t.Run("registry auth", DoRegistryAuthTests)
		t.Run("cafile", DoCAFileTests)
		t.Run("publish", DoPublishTests)
		t.Run("lockfile", DoLockfileTests)
		t.Run("hoisting", DoHoistingTests)
		t.Run("workspaces", DoWorkspaceTests)
		t.Run("lifecycle scripts", DoLifecycleTests)
		t.Run("semver", DoSemverTests)
		t.Run("update", DoUpdateTests)
	})
}
