package framework

import (
	"fmt"
	"strings"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Merge combines the results of two suite runs.
func (r Results) Merge(other Results) Results {
	return Results{
		Tests:    append(append([]TestResult(nil), r.Tests...), other.Tests...),
		Failures: append(append([]TestResult(nil), r.Failures...), other.Failures...),
	}
}

func (r Results) SkippedCount() int {
	n := 0
	for _, t := range r.Tests {
		if t.Skipped {
			n++
		}
	}
	return n
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// PrintResults writes a summary of the test run to standard output.
func PrintResults(results Results) {
	if results.OK() {
		fmt.Printf("All tests passed (%d run, %d skipped)\n", len(results.Tests)-results.SkippedCount(), results.SkippedCount())
		return
	}
	fmt.Printf("FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		fmt.Printf("  * %s\n", f.TestID)
		for _, e := range f.Errors {
			for _, line := range strings.Split(e.Error(), "\n") {
				fmt.Printf("      %s\n", line)
			}
		}
	}
}
