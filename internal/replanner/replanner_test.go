package replanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/models"
)

func TestEvaluatePublishesRequestedAndDecisionEvents(t *testing.T) {
	bus := eventbus.New()
	var requested []models.Event
	var decisions []models.Event
	bus.Subscribe(models.EventReplanRequested, func(e models.Event) { requested = append(requested, e) })
	bus.Subscribe(models.EventReplanDecision, func(e models.Event) { decisions = append(decisions, e) })

	r := New(bus, DefaultThresholds())
	decision := r.Evaluate(models.ExecutionContext{
		TaskID:              "t1",
		ConsecutiveFailures: 10,
	})

	require.True(t, decision.ShouldReplan)
	require.Len(t, requested, 1)
	require.Len(t, decisions, 1)
	assert.Equal(t, "t1", requested[0].TaskID)
	assert.Equal(t, "t1", decisions[0].TaskID)

	payload, ok := decisions[0].Payload.(models.ReplanDecisionPayload)
	require.True(t, ok)
	assert.Equal(t, decision, payload)
}

func TestEvaluateWithNoTriggersPublishesContinueDecision(t *testing.T) {
	bus := eventbus.New()
	var decisions []models.Event
	bus.Subscribe(models.EventReplanDecision, func(e models.Event) { decisions = append(decisions, e) })

	r := New(bus, DefaultThresholds())
	decision := r.Evaluate(models.ExecutionContext{TaskID: "t1"})

	assert.False(t, decision.ShouldReplan)
	require.Len(t, decisions, 1)
}

func TestHandleAgentRequestRejectsUnwatchedTask(t *testing.T) {
	r := New(eventbus.New(), DefaultThresholds())
	_, err := r.HandleAgentRequest(AgentRequest{TaskID: "ghost", Reason: "blocked"})
	assert.Error(t, err)
}

func TestHandleAgentRequestAcceptsWatchedTask(t *testing.T) {
	bus := eventbus.New()
	var decisions []models.Event
	bus.Subscribe(models.EventReplanDecision, func(e models.Event) { decisions = append(decisions, e) })

	r := New(bus, DefaultThresholds())
	r.Watch("t1")

	decision, err := r.HandleAgentRequest(AgentRequest{
		TaskID:     "t1",
		Reason:     "hit an unexpected API boundary",
		Suggestion: "split",
	})
	require.NoError(t, err)
	assert.True(t, decision.ShouldReplan)
	assert.Equal(t, "split", decision.SuggestedAction)
	assert.Equal(t, 1.0, decision.Confidence)
	require.Len(t, decisions, 1)
}

func TestHandleAgentRequestDefaultsActionWhenNoSuggestion(t *testing.T) {
	r := New(eventbus.New(), DefaultThresholds())
	r.Watch("t1")
	decision, err := r.HandleAgentRequest(AgentRequest{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "escalate", decision.SuggestedAction)
}

func TestUnwatchRevokesFutureAgentRequests(t *testing.T) {
	r := New(eventbus.New(), DefaultThresholds())
	r.Watch("t1")
	r.Unwatch("t1")
	_, err := r.HandleAgentRequest(AgentRequest{TaskID: "t1", Reason: "too late"})
	assert.Error(t, err)
}

func TestEvaluateIsSafeWithoutBus(t *testing.T) {
	r := New(nil, DefaultThresholds())
	assert.NotPanics(t, func() {
		r.Evaluate(models.ExecutionContext{TaskID: "t1", ConsecutiveFailures: 99})
	})
}

func TestEvaluateTimeExceededProducesReestimateAction(t *testing.T) {
	r := New(eventbus.New(), DefaultThresholds())
	decision := r.Evaluate(models.ExecutionContext{
		TaskID:            "t1",
		EstimatedDuration: 10 * time.Minute,
		ElapsedDuration:   40 * time.Minute,
	})
	assert.True(t, decision.ShouldReplan)
	assert.Equal(t, "re-estimate", decision.SuggestedAction)
}
