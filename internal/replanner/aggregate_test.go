package replanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateNoFiringsMeansContinue(t *testing.T) {
	decision := aggregate("t1", nil)
	assert.False(t, decision.ShouldReplan)
	assert.Equal(t, "continue", decision.SuggestedAction)
	assert.Zero(t, decision.Confidence)
}

func TestAggregateSingleFiringUsesItsAction(t *testing.T) {
	decision := aggregate("t1", []firing{
		{trigger: TriggerIterationsHigh, confidence: 0.6, reason: "iterations"},
	})
	assert.True(t, decision.ShouldReplan)
	assert.Equal(t, "split", decision.SuggestedAction)
	assert.Equal(t, 0.6, decision.Confidence)
}

func TestAggregateBoostsConfidenceForConcurrentTriggers(t *testing.T) {
	solo := aggregate("t1", []firing{{trigger: TriggerTimeExceeded, confidence: 0.5, reason: "time"}})
	combined := aggregate("t1", []firing{
		{trigger: TriggerTimeExceeded, confidence: 0.5, reason: "time"},
		{trigger: TriggerScopeCreep, confidence: 0.3, reason: "scope"},
	})
	assert.Greater(t, combined.Confidence, solo.Confidence)
}

func TestAggregateClampsConfidenceCeiling(t *testing.T) {
	firings := []firing{
		{trigger: TriggerConsecutiveFailures, confidence: 1.0, reason: "a"},
		{trigger: TriggerComplexity, confidence: 1.0, reason: "b"},
		{trigger: TriggerScopeCreep, confidence: 1.0, reason: "c"},
	}
	decision := aggregate("t1", firings)
	assert.LessOrEqual(t, decision.Confidence, maxAggregateConfidence)
}

func TestAggregatePicksDominantTriggerByConfidence(t *testing.T) {
	decision := aggregate("t1", []firing{
		{trigger: TriggerTimeExceeded, confidence: 0.2, reason: "time"},
		{trigger: TriggerComplexity, confidence: 0.9, reason: "complex"},
	})
	assert.Equal(t, "escalate", decision.SuggestedAction)
	assert.Contains(t, decision.Reason, "complex")
}

func TestActionForConsecutiveFailuresEscalatesThenAborts(t *testing.T) {
	assert.Equal(t, "escalate", actionFor(TriggerConsecutiveFailures, 0.5))
	assert.Equal(t, "abort", actionFor(TriggerConsecutiveFailures, maxAggregateConfidence))
}
