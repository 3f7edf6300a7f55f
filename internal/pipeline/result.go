// SPDX-License-Identifier: MPL-2.0

package pipeline

import "fmt"

// Result counts stage outcomes for one run.
type Result struct {
	Passed int
	Failed int
	// Total is the number of stages selected.
	Total int
}

// Ran returns how many stages were attempted.
func (r Result) Ran() int { return r.Passed + r.Failed }

// Full reports whether every selected stage was attempted.
func (r Result) Full() bool { return r.Ran() == r.Total }

// Pass reports whether no attempted stage failed.
func (r Result) Pass() bool { return r.Failed == 0 }

// ExitCode is 0 for a pass, full or partial, and 1 otherwise.
func (r Result) ExitCode() int {
	if r.Pass() {
		return 0
	}
	return 1
}

// Classification returns "full pass", "partial fail" and so on.
func (r Result) Classification() string {
	extent := "partial"
	if r.Full() {
		extent = "full"
	}
	verdict := "fail"
	if r.Pass() {
		verdict = "pass"
	}
	return extent + " " + verdict
}

// String returns the summary line, e.g. "2/3 passed (full fail)".
func (r Result) String() string {
	return fmt.Sprintf("%d/%d passed (%s)", r.Passed, r.Ran(), r.Classification())
}
