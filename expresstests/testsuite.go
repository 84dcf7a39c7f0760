package expresstests

import (
	"github.com/jsconformance/contract-tests/framework"
)

// SuiteName qualifies test paths for filtering, as in "express/routing/params".
const SuiteName = "express"

func RunTestSuite(
	harness *framework.TestHarness,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := newTestScope(c, harness)

		t.Run("routing", DoRoutingTests)
		t.Run("error handling", DoErrorHandlingTests)
		t.Run("known gaps", DoKnownGapTests)
		t.Run("response", DoResponseTests)
		t.Run("redirect", DoRedirectTests)
		t.Run("sendFile", DoSendFileTests)
	})
}
