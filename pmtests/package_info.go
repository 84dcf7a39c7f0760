// Package pmtests contains the package manager end-to-end tests and their supporting API.
//
// Each test gets its own package directory, cache directory, home directory, and registry. The
// registry is served from a mock endpoint of the test harness, so every request the package
// manager makes is visible to the test. The package manager itself is a black box: tests only
// look at its exit code, its output, and the files it leaves behind.
package pmtests
