// Package replanner watches in-flight task execution state and decides
// when a plan should be revised, per spec.md §4.12. It never mutates the
// plan itself — it only publishes decisions; the Coordinator is the one
// that acts on them.
package replanner

import (
	"fmt"
	"sync"
	"time"

	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/models"
)

// AgentRequest is the payload behind the agent-exposed request_replan
// tool call: reason, an optional suggested action, blockers, complexity
// details, and the files the agent believes are affected.
type AgentRequest struct {
	TaskID            string
	Reason            string
	Suggestion        string
	Blockers          []string
	ComplexityDetails string
	AffectedFiles     []string
}

// Replanner evaluates ExecutionContext snapshots against a set of
// triggers and publishes replan-requested / replan-decision events on
// Bus. It tracks which task IDs are currently being monitored so an
// agent-initiated request can be validated against live work rather than
// accepted blindly.
type Replanner struct {
	Thresholds Thresholds
	Bus        *eventbus.Bus

	mu      sync.Mutex
	watched map[string]bool
}

func New(bus *eventbus.Bus, thresholds Thresholds) *Replanner {
	return &Replanner{Bus: bus, Thresholds: thresholds, watched: make(map[string]bool)}
}

// Watch marks taskID as under active monitoring, so it becomes a valid
// target for an agent-initiated replan request.
func (r *Replanner) Watch(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watched[taskID] = true
}

// Unwatch stops monitoring taskID, typically once it reaches a terminal
// status.
func (r *Replanner) Unwatch(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watched, taskID)
}

func (r *Replanner) isWatched(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watched[taskID]
}

// Evaluate runs every automatic trigger against ctx, publishes a
// replan-requested event for each one that fires, aggregates them into a
// single decision, publishes the decision, and returns it.
func (r *Replanner) Evaluate(ctx models.ExecutionContext) models.ReplanDecisionPayload {
	firings := evaluateAll(ctx, r.Thresholds)
	r.publishFirings(ctx.TaskID, firings)

	decision := aggregate(ctx.TaskID, firings)
	r.publishDecision(ctx.TaskID, decision)
	return decision
}

// HandleAgentRequest processes an agent-initiated request_replan call.
// It is rejected if the task is not currently being monitored — an
// agent cannot request a replan for a task it was never assigned, or one
// that has already finished.
func (r *Replanner) HandleAgentRequest(req AgentRequest) (models.ReplanDecisionPayload, error) {
	if !r.isWatched(req.TaskID) {
		return models.ReplanDecisionPayload{}, fmt.Errorf("replanner: task %s is not under active monitoring", req.TaskID)
	}

	confidence := 1.0
	action := req.Suggestion
	if action == "" {
		action = "escalate"
	}
	reason := req.Reason
	if reason == "" {
		reason = "agent requested replan"
	}
	if req.ComplexityDetails != "" {
		reason = fmt.Sprintf("%s: %s", reason, req.ComplexityDetails)
	}

	f := firing{trigger: TriggerAgentRequest, confidence: confidence, reason: reason}
	r.publishFirings(req.TaskID, []firing{f})

	decision := models.ReplanDecisionPayload{
		ShouldReplan:    true,
		SuggestedAction: action,
		Confidence:      confidence,
		Reason:          reason,
	}
	r.publishDecision(req.TaskID, decision)
	return decision, nil
}

func (r *Replanner) publishFirings(taskID string, firings []firing) {
	if r.Bus == nil {
		return
	}
	now := time.Now()
	for _, f := range firings {
		r.Bus.Publish(models.Event{
			Kind:      models.EventReplanRequested,
			TaskID:    taskID,
			Timestamp: now,
			Payload:   models.ReplanRequestedPayload{Trigger: string(f.trigger), Confidence: f.confidence},
		})
	}
}

func (r *Replanner) publishDecision(taskID string, decision models.ReplanDecisionPayload) {
	if r.Bus == nil {
		return
	}
	r.Bus.Publish(models.Event{
		Kind:      models.EventReplanDecision,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Payload:   decision,
	})
}
