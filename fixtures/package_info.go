// Package fixtures writes and reads the files of an isolated package directory: package.json,
// bunfig.toml, .npmrc, and anything the package manager produces there.
//
// Fixture files are written exactly as given. Placeholders such as ${TOKEN} in an .npmrc are left
// for the package manager to interpolate; Npmrc.ExpandEnv computes what it should see.
package fixtures
