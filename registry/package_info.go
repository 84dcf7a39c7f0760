// Package registry implements a small, deterministic npm registry for use as a test fixture.
//
// It serves package documents ("packuments") and tarballs for packages that the test code
// defines in memory, accepts publishes, creates users, and enforces the authentication schemes
// that package managers use (bearer tokens, basic auth, one-time passwords). Every request is
// recorded so that tests can make assertions about what the client under test actually sent.
//
// A Registry is an http.Handler. It can be mounted on a test harness mock endpoint or served by
// a TLS test server; in either case SetBaseURL must be called so that tarball URLs in package
// documents point back to the registry.
package registry
