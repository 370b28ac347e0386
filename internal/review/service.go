package review

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/models"
)

// Service is the narrow request/approve/reject contract spec.md §4.13
// specifies, backed by a durable Store and publishing resolution events
// the Coordinator reacts to.
type Service struct {
	Store *Store
	Bus   *eventbus.Bus
}

func New(store *Store, bus *eventbus.Bus) *Service {
	return &Service{Store: store, Bus: bus}
}

// Request enqueues a new review item and returns its ID.
func (s *Service) Request(taskID string, reason models.ReviewReason, ctx models.ReviewContext) (string, error) {
	req := models.ReviewRequest{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Reason:    reason,
		Context:   ctx,
		Status:    models.ReviewPending,
		CreatedAt: time.Now(),
	}
	if err := s.Store.Insert(req); err != nil {
		return "", err
	}
	s.publish(models.EventReviewRequested, taskID, models.ReviewRequestedPayload{Reason: reason, Context: ctx})
	return req.ID, nil
}

// Approve resolves reviewID as approved. resolution is an optional
// free-text note threaded through to the Coordinator.
func (s *Service) Approve(reviewID, resolution string) error {
	return s.resolve(reviewID, models.ReviewApproved, resolution, true)
}

// Reject resolves reviewID as rejected. feedback is required: spec.md
// §4.13 calls it the signal the Coordinator relays to the Coder as a new
// fixIssues request, so an empty reject carries no actionable content.
func (s *Service) Reject(reviewID, feedback string) error {
	if feedback == "" {
		return fmt.Errorf("review: rejection of %s requires feedback", reviewID)
	}
	return s.resolve(reviewID, models.ReviewRejected, feedback, false)
}

func (s *Service) resolve(reviewID string, status models.ReviewStatus, note string, approved bool) error {
	req, err := s.Store.Get(reviewID)
	if err != nil {
		return err
	}
	if req.Status != models.ReviewPending {
		return fmt.Errorf("review: %s is already resolved (%s)", reviewID, req.Status)
	}

	now := time.Now()
	if err := s.Store.UpdateStatus(reviewID, status, note, now); err != nil {
		return err
	}
	s.publish(models.EventReviewResolved, req.TaskID, models.ReviewResolvedPayload{Approved: approved, Feedback: note})
	return nil
}

// Get returns the current state of reviewID.
func (s *Service) Get(reviewID string) (models.ReviewRequest, error) {
	return s.Store.Get(reviewID)
}

// Pending returns all review items awaiting resolution.
func (s *Service) Pending() ([]models.ReviewRequest, error) {
	return s.Store.ListByStatus(models.ReviewPending)
}

func (s *Service) publish(kind models.EventKind, taskID string, payload interface{}) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(models.Event{Kind: kind, TaskID: taskID, Timestamp: time.Now(), Payload: payload})
}
