package models

import "time"

// StageKind identifies one of the four QA pipeline stages.
type StageKind string

const (
	StageBuild  StageKind = "build"
	StageLint   StageKind = "lint"
	StageTest   StageKind = "test"
	StageReview StageKind = "review"
)

// Severity is the severity of a review issue.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityMajor      Severity = "major"
	SeverityMinor      Severity = "minor"
	SeveritySuggestion Severity = "suggestion"
)

// StageError is a single normalized error surfaced by a QA stage.
type StageError struct {
	Kind    string
	File    string
	Line    int // 0 if not applicable
	Message string
}

// ReviewIssue is a single finding from the review stage.
type ReviewIssue struct {
	Severity Severity
	File     string
	Message  string
}

// TestCounts holds pass/fail/skip counts for the test stage.
type TestCounts struct {
	Passed  int
	Failed  int
	Skipped int
}

// StageResult is the normalized output of a single QA stage run.
type StageResult struct {
	Kind     StageKind
	Passed   bool
	Duration time.Duration
	Errors   []StageError
	Warnings []string

	// Test stage only. Coverage is optional and opportunistic — nil when
	// the test command's output carries no coverage figure.
	Counts   *TestCounts
	Coverage *float64

	// Review stage only.
	Approved          bool
	HasBlockingIssues bool
	Issues            []ReviewIssue
}

// CountsBySeverity returns how many review issues exist at each severity.
func (r *StageResult) CountsBySeverity() map[Severity]int {
	counts := map[Severity]int{}
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}
