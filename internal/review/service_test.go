package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(newTestStore(t), eventbus.New())
}

func TestRequestPublishesReviewRequestedEvent(t *testing.T) {
	bus := eventbus.New()
	var events []models.Event
	bus.Subscribe(models.EventReviewRequested, func(e models.Event) { events = append(events, e) })

	s := New(newTestStore(t), bus)
	id, err := s.Request("t1", models.ReasonQAExhausted, models.ReviewContext{QAIterations: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, events, 1)
	assert.Equal(t, "t1", events[0].TaskID)

	req, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, req.Status)
}

func TestApprovePublishesReviewResolvedEventWithApprovedTrue(t *testing.T) {
	bus := eventbus.New()
	var events []models.Event
	bus.Subscribe(models.EventReviewResolved, func(e models.Event) { events = append(events, e) })

	s := New(newTestStore(t), bus)
	id, err := s.Request("t1", models.ReasonManual, models.ReviewContext{})
	require.NoError(t, err)

	require.NoError(t, s.Approve(id, "ship it"))
	require.Len(t, events, 1)
	payload, ok := events[0].Payload.(models.ReviewResolvedPayload)
	require.True(t, ok)
	assert.True(t, payload.Approved)
	assert.Equal(t, "ship it", payload.Feedback)

	req, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewApproved, req.Status)
}

func TestRejectRequiresFeedback(t *testing.T) {
	s := newTestService(t)
	id, err := s.Request("t1", models.ReasonMergeConflict, models.ReviewContext{ConflictFiles: []string{"a.go"}})
	require.NoError(t, err)

	err = s.Reject(id, "")
	assert.Error(t, err)

	req, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, req.Status)
}

func TestRejectWithFeedbackResolvesAsRejected(t *testing.T) {
	s := newTestService(t)
	id, err := s.Request("t1", models.ReasonMergeConflict, models.ReviewContext{})
	require.NoError(t, err)

	require.NoError(t, s.Reject(id, "conflicting assumptions about the config schema"))
	req, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, req.Status)
	assert.Equal(t, "conflicting assumptions about the config schema", req.Feedback)
}

func TestResolvingAlreadyResolvedReviewFails(t *testing.T) {
	s := newTestService(t)
	id, err := s.Request("t1", models.ReasonManual, models.ReviewContext{})
	require.NoError(t, err)
	require.NoError(t, s.Approve(id, ""))

	err = s.Approve(id, "")
	assert.Error(t, err)
}

func TestPendingListsOnlyUnresolvedReviews(t *testing.T) {
	s := newTestService(t)
	id1, err := s.Request("t1", models.ReasonManual, models.ReviewContext{})
	require.NoError(t, err)
	id2, err := s.Request("t2", models.ReasonManual, models.ReviewContext{})
	require.NoError(t, err)
	require.NoError(t, s.Approve(id1, ""))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id2, pending[0].ID)
}
