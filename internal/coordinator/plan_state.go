package coordinator

import (
	"sync"
	"time"

	"github.com/nexus-build/nexus/internal/models"
)

// planState is the Coordinator's mutable view of one submitted plan's
// run. All access goes through its methods, which hold mu for the
// duration of the read or write.
type planState struct {
	plan *models.Plan

	mu             sync.Mutex
	status         map[string]models.TaskStatus
	failedReason   map[string]string
	reviewIDs      map[string]string
	reviewPending  map[string]models.Task
	lastDecision   map[string]models.ReplanDecisionPayload
	monitorStop    map[string]chan struct{}
	wavesCompleted int
	blocked        bool
	startedAt      time.Time
	updated        time.Time
	cancelled      bool

	cancelCh chan struct{}
	done     chan struct{}
}

func newPlanState(plan *models.Plan) *planState {
	now := time.Now()
	s := &planState{
		plan:          plan,
		status:        make(map[string]models.TaskStatus, len(plan.Tasks)),
		failedReason:  make(map[string]string),
		reviewIDs:     make(map[string]string),
		reviewPending: make(map[string]models.Task),
		lastDecision:  make(map[string]models.ReplanDecisionPayload),
		monitorStop:   make(map[string]chan struct{}),
		startedAt:     now,
		updated:       now,
		cancelCh:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, t := range plan.Tasks {
		s.status[t.ID] = models.TaskPending
	}
	return s
}

func (s *planState) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	close(s.cancelCh)
}

func (s *planState) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *planState) markStatus(taskID string, status models.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[taskID] = status
	s.updated = time.Now()
}

func (s *planState) statusOf(taskID string) models.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[taskID]
}

// setMergeCommit records the commit id a task's branch was merged as,
// satisfying the data-model invariant that a done task carries a merge
// commit identifier.
func (s *planState) setMergeCommit(taskID, commit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.plan.Tasks {
		if s.plan.Tasks[i].ID == taskID {
			s.plan.Tasks[i].MergeCommit = commit
			break
		}
	}
	s.updated = time.Now()
}

func (s *planState) setFailedReason(taskID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedReason[taskID] = reason
}

func (s *planState) setReviewPending(taskID, reviewID string, task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewIDs[taskID] = reviewID
	s.reviewPending[taskID] = task
}

func (s *planState) takeReviewPending(taskID string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.reviewPending[taskID]
	if ok {
		delete(s.reviewPending, taskID)
		delete(s.reviewIDs, taskID)
	}
	return task, ok
}

func (s *planState) recordDecision(taskID string, decision models.ReplanDecisionPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDecision[taskID] = decision
}

func (s *planState) incWavesCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wavesCompleted++
	s.updated = time.Now()
}

func (s *planState) setBlocked(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = v
	s.updated = time.Now()
}

// startMonitor registers a stop channel for taskID's periodic replan
// check, closing any previous one for the same id.
func (s *planState) startMonitor(taskID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.monitorStop[taskID]; ok {
		close(prev)
	}
	stop := make(chan struct{})
	s.monitorStop[taskID] = stop
	return stop
}

// stopMonitor signals taskID's monitor goroutine (if any) to exit.
func (s *planState) stopMonitor(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.monitorStop[taskID]; ok {
		close(stop)
		delete(s.monitorStop, taskID)
	}
}

func (s *planState) containsTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.status[taskID]
	return ok
}

func (s *planState) snapshot() models.PlanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := models.PlanStatus{
		PlanID:     s.plan.ID,
		WavesTotal: len(s.plan.Waves),
		WavesCompleted: s.wavesCompleted,
		StartedAt:  s.startedAt,
		Updated:    s.updated,
	}
	for id, st := range s.status {
		switch st {
		case models.TaskDone:
			out.Done = append(out.Done, id)
		case models.TaskFailed:
			out.Failed = append(out.Failed, id)
		case models.TaskAwaitingReview:
			out.AwaitingReview = append(out.AwaitingReview, id)
		case models.TaskBlocked:
			out.Blocked = append(out.Blocked, id)
		case models.TaskInProgress, models.TaskQueued:
			out.InProgress = append(out.InProgress, id)
		}
	}
	return out
}
