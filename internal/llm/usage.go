package llm

import (
	"sync"

	"github.com/nexus-build/nexus/internal/models"
)

// UsageAccumulator tracks cumulative token usage broken down by agent
// type, per spec: "usage statistics are accumulated per agent type".
// Unlike the teacher's UsageTracker, which buckets usage into rolling
// 5-hour billing windows for a single human operator's Claude Code
// subscription, this accumulator is a flat per-role counter: Nexus's
// agent pool runs many concurrent agents against one provider account and
// cares about which role is burning tokens, not when a billing window
// resets.
type UsageAccumulator struct {
	mu     sync.Mutex
	totals map[models.AgentRole]models.TokenUsage
}

// NewUsageAccumulator returns an empty accumulator.
func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{totals: make(map[models.AgentRole]models.TokenUsage)}
}

// Add folds usage into the running total for role.
func (u *UsageAccumulator) Add(role models.AgentRole, usage models.TokenUsage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	t := u.totals[role]
	t.Add(usage)
	u.totals[role] = t
}

// ByRole returns a snapshot of accumulated usage per role.
func (u *UsageAccumulator) ByRole() map[models.AgentRole]models.TokenUsage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[models.AgentRole]models.TokenUsage, len(u.totals))
	for k, v := range u.totals {
		out[k] = v
	}
	return out
}

// Total sums usage across every role.
func (u *UsageAccumulator) Total() models.TokenUsage {
	u.mu.Lock()
	defer u.mu.Unlock()
	var total models.TokenUsage
	for _, v := range u.totals {
		total.Add(v)
	}
	return total
}
