package coordinator

import "github.com/nexus-build/nexus/internal/llm"

// BudgetGate refuses to start a new wave once accumulated LLM token
// usage crosses a configured ceiling. It plays the role of the wave
// executor's cost check, adapted from USD cost (unavailable here — Nexus
// has no pricing model wired to its LLM client) to token count, which the
// UsageAccumulator tracks directly.
type BudgetGate struct {
	Usage         *llm.UsageAccumulator
	MaxTokens     int64
	WarnThreshold float64 // fraction of MaxTokens, e.g. 0.8
}

// NewBudgetGate constructs a gate. warnThreshold <= 0 disables warnings.
func NewBudgetGate(usage *llm.UsageAccumulator, maxTokens int64, warnThreshold float64) *BudgetGate {
	return &BudgetGate{Usage: usage, MaxTokens: maxTokens, WarnThreshold: warnThreshold}
}

// BudgetStatus is the result of a single budget check.
type BudgetStatus struct {
	UsedTokens int64
	MaxTokens  int64
	Ratio      float64
	Exceeded   bool
	Warn       bool
}

// Check reports whether the budget is exceeded or approaching its
// ceiling.
func (g *BudgetGate) Check() BudgetStatus {
	if g == nil || g.MaxTokens <= 0 {
		return BudgetStatus{}
	}
	used := g.Usage.Total().Total()
	ratio := float64(used) / float64(g.MaxTokens)
	return BudgetStatus{
		UsedTokens: used,
		MaxTokens:  g.MaxTokens,
		Ratio:      ratio,
		Exceeded:   ratio >= 1.0,
		Warn:       g.WarnThreshold > 0 && ratio >= g.WarnThreshold,
	}
}
