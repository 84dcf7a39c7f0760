// Package expresstests contains the Express conformance tests and their supporting API.
//
// The framework under test runs inside the test service. For each test, the harness describes an
// application (settings, static files, and routes made of canned handler actions), asks the
// service to start it, and then makes real HTTP requests to it.
package expresstests
