package replanner

import (
	"fmt"

	"github.com/nexus-build/nexus/internal/models"
)

// maxAggregateConfidence is the ceiling spec.md §4.12 puts on the combined
// confidence regardless of how many triggers fire at once.
const maxAggregateConfidence = 0.95

// concurrentTriggerBoost is added per additional simultaneously active
// trigger, on top of the dominant trigger's own confidence.
const concurrentTriggerBoost = 0.05

// actionFor maps a trigger to its default suggested action. When several
// firings share the highest confidence, aggregate keeps the first one in
// evaluation order and uses its action.
func actionFor(trigger Trigger, confidence float64) string {
	switch trigger {
	case TriggerTimeExceeded:
		return "re-estimate"
	case TriggerIterationsHigh, TriggerScopeCreep:
		return "split"
	case TriggerConsecutiveFailures:
		if confidence >= maxAggregateConfidence {
			return "abort"
		}
		return "escalate"
	case TriggerComplexity:
		return "escalate"
	default:
		return "continue"
	}
}

// aggregate combines the set of active firings into one decision, per
// spec.md §4.12: max confidence with a small boost for concurrent
// triggers, clamped to 0.95.
func aggregate(taskID string, firings []firing) models.ReplanDecisionPayload {
	if len(firings) == 0 {
		return models.ReplanDecisionPayload{ShouldReplan: false, SuggestedAction: "continue"}
	}

	dominant := firings[0]
	for _, f := range firings[1:] {
		if f.confidence > dominant.confidence {
			dominant = f
		}
	}

	confidence := dominant.confidence + concurrentTriggerBoost*float64(len(firings)-1)
	if confidence > maxAggregateConfidence {
		confidence = maxAggregateConfidence
	}

	reason := dominant.reason
	if len(firings) > 1 {
		reason = fmt.Sprintf("%s (plus %d other active trigger(s))", reason, len(firings)-1)
	}

	return models.ReplanDecisionPayload{
		ShouldReplan:    true,
		SuggestedAction: actionFor(dominant.trigger, confidence),
		Confidence:      confidence,
		Reason:          reason,
	}
}
