package replanner

// Thresholds holds the default trigger thresholds from spec.md §4.12, all
// configurable.
type Thresholds struct {
	// TimeExceededRatio fires when elapsed/estimated exceeds this ratio.
	TimeExceededRatio float64
	// IterationsHighRatio fires when iteration/maxIteration exceeds this ratio.
	IterationsHighRatio float64
	// ScopeCreepFiles fires when more than this many modified files fall
	// outside the task's expected set.
	ScopeCreepFiles int
	// ConsecutiveFailures fires when more than this many iterations have
	// failed in a row.
	ConsecutiveFailures int
	// ComplexityKeywords are matched case-insensitively against recent
	// errors and agent feedback.
	ComplexityKeywords []string
}

// DefaultThresholds returns the defaults spec.md §4.12 tabulates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TimeExceededRatio:   1.5,
		IterationsHighRatio: 0.4,
		ScopeCreepFiles:     3,
		ConsecutiveFailures: 5,
		ComplexityKeywords: []string{
			"race condition", "deadlock", "circular dependency", "architecture change",
			"breaking change", "data corruption", "memory leak", "needs rewrite",
		},
	}
}
