package deploy

import "git.home.luguber.info/inful/metadeploy/internal/config"

// Result is the structured outcome of a completed job.
type Result struct {
	Job       JobReference
	Success   bool
	CheckOnly bool
	State     string
	TestLevel config.TestLevel // effective level sent with the submission

	ComponentFailures []ComponentFailure
	TestFailures      []TestFailure
	Coverage          []ClassCoverage
	CoverageWarnings  []CoverageWarning
	TestsRun          int

	// TotalCoverage is (1 - uncovered/locations) * 100 over all classes
	// combined, not an average of class percentages.
	TotalCoverage float64
}

// NewResult extracts a Result from a final status.
func NewResult(st *Status, level config.TestLevel) *Result {
	r := &Result{
		Job:       st.ID,
		Success:   st.Success,
		CheckOnly: st.CheckOnly,
		State:     st.State,
		TestLevel: level,
	}
	if st.Details == nil {
		return r
	}
	r.ComponentFailures = st.Details.ComponentFailures
	rtr := st.Details.RunTestResult
	r.TestFailures = rtr.Failures
	r.Coverage = rtr.CodeCoverage
	r.CoverageWarnings = rtr.CodeCoverageWarnings
	r.TestsRun = rtr.NumTestsRun
	r.TotalCoverage = AggregateCoverage(rtr.CodeCoverage)
	return r
}

// AggregateCoverage combines class coverage by summing locations.
func AggregateCoverage(classes []ClassCoverage) float64 {
	var total, uncovered int
	for _, c := range classes {
		total += c.Locations
		uncovered += c.Uncovered
	}
	if total <= 0 {
		return 0
	}
	return coverage(uncovered, total)
}

// RanTests reports whether the submission asked the platform to run tests.
func (r *Result) RanTests() bool {
	return r.TestLevel != "" && r.TestLevel != config.TestLevelNone
}
