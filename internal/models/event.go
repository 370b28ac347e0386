package models

import "time"

// EventKind is a closed enum of the event families the Event Bus delivers.
// New event kinds must be added here, never synthesized ad hoc by callers.
type EventKind string

const (
	EventTaskQueued      EventKind = "task-queued"
	EventTaskStarted     EventKind = "task-started"
	EventTaskCompleted   EventKind = "task-completed"
	EventTaskFailed      EventKind = "task-failed"
	EventStageStarted    EventKind = "stage-started"
	EventStageCompleted  EventKind = "stage-completed"
	EventReplanRequested EventKind = "replan-requested"
	EventReplanDecision  EventKind = "replan-decision"
	EventReviewRequested EventKind = "review-requested"
	EventReviewResolved  EventKind = "review-resolved"
)

// Event is a typed message on the bus. Payload is one of the *Payload
// structs below; its concrete type is determined by Kind.
type Event struct {
	Kind      EventKind
	TaskID    string
	Timestamp time.Time
	Payload   interface{}
}

// TaskQueuedPayload is the payload for EventTaskQueued.
type TaskQueuedPayload struct {
	Priority Priority
}

// TaskStartedPayload is the payload for EventTaskStarted.
type TaskStartedPayload struct {
	AgentID    string
	WorktreeID string
	Role       AgentRole
}

// TaskCompletedPayload is the payload for EventTaskCompleted.
type TaskCompletedPayload struct {
	MergeCommit string
	Duration    time.Duration
}

// TaskFailedPayload is the payload for EventTaskFailed.
type TaskFailedPayload struct {
	Reason string
	Errors []StageError
}

// StageStartedPayload is the payload for EventStageStarted.
type StageStartedPayload struct {
	Kind      StageKind
	Iteration int
}

// StageCompletedPayload is the payload for EventStageCompleted.
type StageCompletedPayload struct {
	Result StageResult
}

// ReplanRequestedPayload is the payload for EventReplanRequested.
type ReplanRequestedPayload struct {
	Trigger    string
	Confidence float64
}

// ReplanDecisionPayload is the payload for EventReplanDecision.
type ReplanDecisionPayload struct {
	ShouldReplan    bool
	SuggestedAction string
	Confidence      float64
	Reason          string
}

// ReviewRequestedPayload is the payload for EventReviewRequested.
type ReviewRequestedPayload struct {
	Reason  ReviewReason
	Context ReviewContext
}

// ReviewResolvedPayload is the payload for EventReviewResolved.
type ReviewResolvedPayload struct {
	Approved bool
	Feedback string
}
