package framework

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Filter decides whether a test runs. Tests it rejects are reported as skipped.
type Filter func(TestID) bool

// RegexFilters selects tests with the -run and -skip patterns.
//
// A pattern is tried against the test path ("install/basic-1 from the registry") and against the
// same path qualified with the suite name ("pm/install/basic-1 from the registry"), so "^pm/"
// selects a whole suite and "^install/" keeps working for either.
type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

// ForSuite returns the Filter for one suite's tests.
func (r RegexFilters) ForSuite(suite string) Filter {
	return func(id TestID) bool {
		names := []string{id.String(), suite + "/" + id.String()}
		if len(r.MustMatch) > 0 && !r.MustMatch.AnyMatch(names...) {
			return false
		}
		return !r.MustNotMatch.AnyMatch(names...)
	}
}

// IsDefined is true if either list has a pattern.
func (r RegexFilters) IsDefined() bool {
	return len(r.MustMatch) > 0 || len(r.MustNotMatch) > 0
}

// RegexList is a repeatable command-line flag holding regular expressions.
type RegexList []*regexp.Regexp

func (r RegexList) String() string {
	quoted := make([]string, 0, len(r))
	for _, p := range r.Patterns() {
		quoted = append(quoted, fmt.Sprintf("%q", p))
	}
	return strings.Join(quoted, " or ")
}

// Set adds a pattern; it implements flag.Value.
func (r *RegexList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex %q: %w", value, err)
	}
	*r = append(*r, rx)
	return nil
}

// Patterns returns the source text of every pattern.
func (r RegexList) Patterns() []string {
	ret := make([]string, 0, len(r))
	for _, rx := range r {
		ret = append(ret, rx.String())
	}
	return ret
}

// AnyMatch is true if any pattern matches any of the names.
func (r RegexList) AnyMatch(names ...string) bool {
	for _, rx := range r {
		for _, name := range names {
			if rx.MatchString(name) {
				return true
			}
		}
	}
	return false
}

// DescribeFilters explains which tests the filters will leave out. It writes nothing if there
// are no filters.
func DescribeFilters(w io.Writer, filters RegexFilters) {
	if !filters.IsDefined() {
		return
	}
	fmt.Fprintln(w, "Some tests will be skipped based on the filter criteria for this test run:")
	if len(filters.MustMatch) > 0 {
		fmt.Fprintf(w, "  skip any not matching %s\n", filters.MustMatch)
	}
	if len(filters.MustNotMatch) > 0 {
		fmt.Fprintf(w, "  skip any matching %s\n", filters.MustNotMatch)
	}
	fmt.Fprintln(w)
}

// DescribeMissingCapabilities lists the capabilities in all that the connected test service did
// not declare. It writes nothing if no service is connected or none are missing.
func DescribeMissingCapabilities(w io.Writer, harness *TestHarness, all []string) {
	if !harness.HasTestService() {
		return
	}
	var missing []string
	for _, c := range all {
		if !harness.TestServiceHasCapability(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return
	}
	fmt.Fprintln(w, "Some tests will be skipped because the test service does not support:")
	fmt.Fprintf(w, "  %s\n", strings.Join(missing, ", "))
	fmt.Fprintln(w)
}
