package replanner

import (
	"strings"

	"github.com/nexus-build/nexus/internal/models"
)

// Trigger identifies which replan condition fired, per spec.md §4.12's
// trigger table.
type Trigger string

const (
	TriggerTimeExceeded        Trigger = "time_exceeded"
	TriggerIterationsHigh      Trigger = "iterations_high"
	TriggerScopeCreep          Trigger = "scope_creep"
	TriggerConsecutiveFailures Trigger = "consecutive_failures"
	TriggerComplexity          Trigger = "complexity"
	TriggerAgentRequest        Trigger = "agent_request"
)

// firing is one trigger's verdict: whether it fired and at what confidence.
type firing struct {
	trigger    Trigger
	confidence float64
	reason     string
}

// overageConfidence maps how far value exceeds threshold to a confidence
// in [0,1]: 0 right at the threshold, approaching 1 as value reaches
// roughly double the threshold. Below the threshold it's 0 (not fired).
func overageConfidence(value, threshold float64) float64 {
	if threshold <= 0 || value <= threshold {
		return 0
	}
	c := (value - threshold) / threshold
	if c > 1 {
		c = 1
	}
	return c
}

func evaluateTimeExceeded(ctx models.ExecutionContext, t Thresholds) (firing, bool) {
	if ctx.EstimatedDuration <= 0 {
		return firing{}, false
	}
	ratio := float64(ctx.ElapsedDuration) / float64(ctx.EstimatedDuration)
	confidence := overageConfidence(ratio, t.TimeExceededRatio)
	if confidence <= 0 {
		return firing{}, false
	}
	return firing{trigger: TriggerTimeExceeded, confidence: confidence, reason: "elapsed time exceeds estimate"}, true
}

func evaluateIterationsHigh(ctx models.ExecutionContext, t Thresholds) (firing, bool) {
	if ctx.MaxIteration <= 0 {
		return firing{}, false
	}
	ratio := float64(ctx.Iteration) / float64(ctx.MaxIteration)
	confidence := overageConfidence(ratio, t.IterationsHighRatio)
	if confidence <= 0 {
		return firing{}, false
	}
	return firing{trigger: TriggerIterationsHigh, confidence: confidence, reason: "iteration count approaching the cap"}, true
}

func evaluateScopeCreep(ctx models.ExecutionContext, t Thresholds) (firing, bool) {
	count := ctx.ScopeCreepCount()
	confidence := overageConfidence(float64(count), float64(t.ScopeCreepFiles))
	if confidence <= 0 {
		return firing{}, false
	}
	return firing{trigger: TriggerScopeCreep, confidence: confidence, reason: "modified files exceed the expected set"}, true
}

func evaluateConsecutiveFailures(ctx models.ExecutionContext, t Thresholds) (firing, bool) {
	confidence := overageConfidence(float64(ctx.ConsecutiveFailures), float64(t.ConsecutiveFailures))
	if confidence <= 0 {
		return firing{}, false
	}
	return firing{trigger: TriggerConsecutiveFailures, confidence: confidence, reason: "repeated consecutive failures"}, true
}

func evaluateComplexity(ctx models.ExecutionContext, t Thresholds) (firing, bool) {
	haystack := strings.ToLower(strings.Join(ctx.RecentErrors, " ") + " " + ctx.AgentFeedback)
	var matched []string
	for _, kw := range t.ComplexityKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return firing{}, false
	}
	confidence := 0.5 + 0.1*float64(len(matched)-1)
	if confidence > 1 {
		confidence = 1
	}
	return firing{
		trigger:    TriggerComplexity,
		confidence: confidence,
		reason:     "complexity keywords present: " + strings.Join(matched, ", "),
	}, true
}

// evaluateAll runs every automatic trigger (everything but agent_request,
// which arrives out of band via HandleAgentRequest) against ctx.
func evaluateAll(ctx models.ExecutionContext, t Thresholds) []firing {
	var firings []firing
	checks := []func(models.ExecutionContext, Thresholds) (firing, bool){
		evaluateTimeExceeded,
		evaluateIterationsHigh,
		evaluateScopeCreep,
		evaluateConsecutiveFailures,
		evaluateComplexity,
	}
	for _, check := range checks {
		if f, ok := check(ctx, t); ok {
			firings = append(firings, f)
		}
	}
	return firings
}
