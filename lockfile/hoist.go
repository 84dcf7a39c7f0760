package lockfile

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ExpectedHoist returns the version of a shared dependency that should be installed at the top
// of node_modules, given the ranges that dependents request and the versions the registry has.
// The winner satisfies the most ranges; ties go to the highest version. It returns an error if
// no available version satisfies any range.
func ExpectedHoist(constraints []string, available []string) (string, error) {
	parsed := make([]*semver.Constraints, 0, len(constraints))
	for _, c := range constraints {
		pc, err := semver.NewConstraint(c)
		if err != nil {
			return "", fmt.Errorf("invalid range %q: %w", c, err)
		}
		parsed = append(parsed, pc)
	}

	var best *semver.Version
	bestCount := 0
	for _, a := range available {
		v, err := semver.NewVersion(a)
		if err != nil {
			return "", fmt.Errorf("invalid version %q: %w", a, err)
		}
		count := 0
		for _, c := range parsed {
			if c.Check(v) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		if count > bestCount || (count == bestCount && v.GreaterThan(best)) {
			best, bestCount = v, count
		}
	}
	if best == nil {
		return "", fmt.Errorf("no version in %v satisfies any of %v", available, constraints)
	}
	return best.Original(), nil
}

// MaxSatisfying returns the highest available version within a range, as an install resolves a
// single dependency.
func MaxSatisfying(constraint string, available []string) (string, bool) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return "", false
	}
	var best *semver.Version
	for _, a := range available {
		v, err := semver.NewVersion(a)
		if err != nil || !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", false
	}
	return best.Original(), true
}
