package models

import "time"

// ReviewReason is why a task was queued for human review.
type ReviewReason string

const (
	ReasonQAExhausted   ReviewReason = "qa-exhausted"
	ReasonMergeConflict ReviewReason = "merge-conflict"
	ReasonManual        ReviewReason = "manual"
)

// ReviewStatus is the lifecycle state of a ReviewRequest.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ReviewContext is a rich context snapshot attached to a ReviewRequest.
type ReviewContext struct {
	QAIterations    int
	SuggestedAction string
	ConflictFiles   []string
	LastErrors      []StageError
}

// ReviewRequest is a queued human-review item.
type ReviewRequest struct {
	ID        string
	TaskID    string
	Reason    ReviewReason
	Context   ReviewContext
	Status    ReviewStatus
	Feedback  string // required on reject; optional resolution note on approve
	CreatedAt time.Time
	ResolvedAt *time.Time
}
