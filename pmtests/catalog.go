package pmtests

import (
	"fmt"

	"github.com/jsconformance/contract-tests/registry"
)

const (
	hoistShared       = "hoist-shared"
	sleepEvents       = "events.log"
	optionalPackage   = "optional-dep"
	deprecatedPackage = "deprecated-pkg"
)

var hoistSharedVersions = []string{"1.0.0", "1.0.1", "1.0.2", "1.0.3", "1.0.4"}

// Each hoisting dependent depends on hoist-shared with one range.
var (
	hoistExactDependents = map[string]string{"hoist-exact-1": "1.0.1", "hoist-exact-2": "1.0.2", "hoist-exact-3": "1.0.3"}
	hoistRangeDependents = map[string]string{"hoist-range-1": "*", "hoist-range-2": "<=1.0.8", "hoist-range-3": "<1.0.2"}
	hoistEdgeDependents  = map[string]string{"hoist-edge-1": ">=1.0.0 <1.0.3", "hoist-edge-2": "^1.0.0"}
)

// Packages whose postinstall script sleeps, for measuring script concurrency.
var sleepPackages = []string{"sleep-script-1", "sleep-script-2", "sleep-script-3", "sleep-script-4", "sleep-script-5"}

// Catalog returns the packages that every test registry starts with.
func Catalog() []registry.PackageVersion {
	pkgs := []registry.PackageVersion{
		{Name: "basic-1", Version: "1.0.0"},
		{Name: "what-bin", Version: "1.0.0", Bin: map[string]string{"what-bin": "what-bin.js"}},
		{Name: "uses-what-bin", Version: "1.0.0", Dependencies: map[string]string{"what-bin": "1.0.0"}},
		{Name: "dev-only", Version: "1.0.0"},
		{Name: "@private/scoped-pkg", Version: "1.0.0"},
		{
			Name:    "lifecycle-postinstall",
			Version: "1.0.0",
			Scripts: map[string]string{"postinstall": "echo postinstall >> postinstall.txt"},
		},
		{Name: "no-deps", Version: "1.0.0"},
		{Name: "no-deps", Version: "1.0.1"},
		{Name: "no-deps", Version: "1.1.0"},
		{Name: "no-deps", Version: "2.0.0"},
		{Name: "no-deps", Version: "2.1.0-beta.1", Tags: []string{"beta"}},
		{Name: optionalPackage, Version: "1.0.0"},
		{Name: "has-optional", Version: "1.0.0", OptionalDependencies: map[string]string{optionalPackage: "1.0.0"}},
		{Name: deprecatedPackage, Version: "1.0.0", Deprecated: "use basic-1 instead"},
	}
	for _, v := range hoistSharedVersions {
		pkgs = append(pkgs, registry.PackageVersion{Name: hoistShared, Version: v})
	}
	for _, group := range []map[string]string{hoistExactDependents, hoistRangeDependents, hoistEdgeDependents} {
		for name, constraint := range group {
			pkgs = append(pkgs, registry.PackageVersion{
				Name:         name,
				Version:      "1.0.0",
				Dependencies: map[string]string{hoistShared: constraint},
			})
		}
	}
	for _, name := range sleepPackages {
		pkgs = append(pkgs, registry.PackageVersion{
			Name:    name,
			Version: "1.0.0",
			Scripts: map[string]string{
				"postinstall": fmt.Sprintf("echo start >> ../../%[1]s && sleep 0.3 && echo end >> ../../%[1]s", sleepEvents),
			},
		})
	}
	return pkgs
}
