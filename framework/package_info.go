// Package framework contains the low-level implementation of test harness infrastructure
// that is shared by the package-manager suite and the Express suite.
//
// The general model is:
//
// 1. There is a general notion of a test context which is similar to Go's *testing.T,
// allowing pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results.
//
// 2. The test harness can expose any number of mock endpoints on a single HTTP listener.
// The package-manager suite mounts a fresh fixture registry on one of these for every test.
//
// 3. The harness can talk to a test service, which exposes a root endpoint for querying its
// status (GET) or creating some kind of entity within the test service (POST). The Express
// suite uses this to ask an adapter process to build applications from route descriptions.
//
// 4. External executables are run with RunCommand, which captures their output and applies
// the suite's global timeout.
//
// The domain-specific code that knows what is being tested is responsible for providing
// the parameters to send to the test service, the HTTP handlers for mock endpoints, and a
// domain-specific test API on top of the test context.
package framework
