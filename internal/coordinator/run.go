package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/pool"
)

// run drives state's plan wave by wave until completion, cancellation,
// or a plan-wide halt (budget exceeded). Within a wave, a task whose
// prerequisite did not complete (failed, blocked, or still awaiting
// review) is marked blocked individually; its wave siblings that have
// no such dependency still dispatch, per spec.md §5 and §7. It closes
// state.done on return.
func (c *Coordinator) run(state *planState) {
	defer close(state.done)
	planStart := time.Now()
	defer func() {
		c.cfg.Logger.LogPlanDone(state.plan.ID, state.snapshot(), time.Since(planStart))
	}()

	byID := state.plan.TaskByID()
	waves := state.plan.Waves

	for waveIdx, wave := range waves {
		if state.isCancelled() {
			c.blockRemaining(state, waves, waveIdx)
			return
		}

		if status := c.cfg.BudgetGate.Check(); status.Exceeded {
			c.cfg.Logger.LogBudgetStatus(status.UsedTokens, status.MaxTokens, status.Ratio, status.Exceeded, status.Warn)
			c.publishReplanRequested("", "budget-exceeded", 1.0)
			state.setBlocked(true)
			c.blockRemaining(state, waves, waveIdx)
			return
		}

		waveStart := time.Now()
		pending := make(map[string]bool, len(wave.TaskIDs))
		var dispatched []string
		for _, taskID := range wave.TaskIDs {
			task, ok := byID[taskID]
			if !ok {
				continue
			}
			if dep, blocked := blockingDependency(state, task.DependsOn); blocked {
				state.markStatus(taskID, models.TaskBlocked)
				c.cfg.Logger.LogTaskResult(taskID, models.TaskBlocked, fmt.Errorf("prerequisite %s did not complete", dep))
				continue
			}
			dispatched = append(dispatched, taskID)
			c.cfg.Replanner.Watch(taskID)
			state.markStatus(taskID, models.TaskQueued)
			c.cfg.Logger.LogTaskStart(*task, models.RoleCoder)
			c.cfg.Pool.Submit(*task, models.RoleCoder)
			pending[taskID] = true
			go c.monitorTask(state, *task)
		}
		c.cfg.Logger.LogWaveStart(state.plan.ID, waveIdx, len(waves), dispatched)

		if !c.awaitWave(state, pending) {
			c.blockRemaining(state, waves, waveIdx+1)
			return
		}

		state.incWavesCompleted()
		c.cfg.Logger.LogWaveComplete(state.plan.ID, waveIdx, time.Since(waveStart), state.snapshot())
	}
}

// blockingDependency returns the first id in deps whose status prevents
// its dependent from dispatching: failed, already blocked, or still
// awaiting review. A task whose dependencies are all done is clear to
// dispatch regardless of what else failed elsewhere in the plan.
func blockingDependency(state *planState, deps []string) (string, bool) {
	for _, dep := range deps {
		switch state.statusOf(dep) {
		case models.TaskFailed, models.TaskBlocked, models.TaskAwaitingReview:
			return dep, true
		}
	}
	return "", false
}

// blockRemaining marks every not-yet-dispatched task in waves[from:] as
// blocked. Used only for plan-wide halts (cancellation, budget
// exhaustion) where every remaining task is abandoned regardless of its
// dependencies — unlike a single task failure, which blocks only its
// own transitive dependents via blockingDependency above.
func (c *Coordinator) blockRemaining(state *planState, waves []models.Wave, from int) {
	for _, wave := range waves[from:] {
		for _, taskID := range wave.TaskIDs {
			if state.statusOf(taskID) == models.TaskPending {
				state.markStatus(taskID, models.TaskBlocked)
			}
		}
	}
}

// awaitWave blocks until every task in pending has a terminal outcome in
// the pool. Cancellation does not cut the wait short: the in-flight tasks
// are still awaited, and awaitWave then returns false.
func (c *Coordinator) awaitWave(state *planState, pending map[string]bool) bool {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	cancelCh := state.cancelCh
	cancelled := false
	for {
		for taskID := range pending {
			outcome, ok := c.cfg.Pool.Outcome(taskID)
			if !ok {
				continue
			}
			c.processOutcome(state, taskID, outcome)
			delete(pending, taskID)
		}
		if len(pending) == 0 {
			return !cancelled
		}
		select {
		case <-cancelCh:
			cancelled = true
			cancelCh = nil
		case <-ticker.C:
		}
	}
}

// processOutcome reconciles one task's terminal pool outcome into
// planState, running commit verification on an otherwise-clean merge.
func (c *Coordinator) processOutcome(state *planState, taskID string, outcome pool.TaskOutcome) {
	c.cfg.Replanner.Unwatch(taskID)
	state.stopMonitor(taskID)

	switch {
	case outcome.Err != nil:
		state.markStatus(taskID, models.TaskFailed)
		state.setFailedReason(taskID, outcome.Err.Error())
		c.cfg.Logger.LogTaskResult(taskID, models.TaskFailed, outcome.Err)

	case outcome.Review != nil:
		id, err := c.cfg.Review.Request(taskID, outcome.Review.Reason, outcome.Review.Context)
		if err != nil {
			state.markStatus(taskID, models.TaskFailed)
			state.setFailedReason(taskID, err.Error())
			c.cfg.Logger.LogTaskResult(taskID, models.TaskFailed, err)
			return
		}
		state.setReviewPending(taskID, id, outcome.Task)
		state.markStatus(taskID, models.TaskAwaitingReview)
		c.cfg.Logger.LogReviewRequested(taskID, outcome.Review.Reason)

	default:
		if verified := c.verifyCommit(state, taskID, outcome); !verified {
			return
		}
		state.setMergeCommit(taskID, outcome.MergeCommit)
		state.markStatus(taskID, models.TaskDone)
		c.cfg.Logger.LogTaskResult(taskID, models.TaskDone, nil)
	}
}

// verifyCommit runs the commit verifier (if configured) against a
// cleanly-merged task's worktree. A mismatch routes the task to human
// review instead of marking it done; it returns false in that case.
func (c *Coordinator) verifyCommit(state *planState, taskID string, outcome pool.TaskOutcome) bool {
	if c.cfg.CommitVerifier == nil || c.cfg.WorktreeManager == nil {
		return true
	}
	wt, ok := c.cfg.WorktreeManager.Get(taskID)
	if !ok {
		return true
	}
	defer func() { _ = c.cfg.WorktreeManager.RemoveWorktree(context.Background(), taskID) }()

	result, err := c.cfg.CommitVerifier.Verify(context.Background(), outcome.Task, wt.Path, c.cfg.BaseBranch)
	if err != nil || result.Verified {
		return true
	}

	id, reqErr := c.cfg.Review.Request(taskID, models.ReasonManual, models.ReviewContext{
		SuggestedAction: "review unexpected file changes",
		ConflictFiles:   result.UnexpectedFiles,
	})
	if reqErr != nil {
		state.markStatus(taskID, models.TaskFailed)
		state.setFailedReason(taskID, reqErr.Error())
		c.cfg.Logger.LogTaskResult(taskID, models.TaskFailed, reqErr)
		return false
	}
	state.setReviewPending(taskID, id, outcome.Task)
	state.markStatus(taskID, models.TaskAwaitingReview)
	c.cfg.Logger.LogReviewRequested(taskID, models.ReasonManual)
	return false
}

// monitorTask periodically re-evaluates an in-flight task against the
// Replanner's triggers, using wall-clock elapsed time against the
// task's estimate. The pool does not expose a running task's live
// iteration count or modified-file set, and the context built here sets
// neither MaxIteration nor ModifiedFiles, so the iteration-count and
// scope-creep triggers never fire from this monitor, including for a
// resubmitted (post-review) task.
func (c *Coordinator) monitorTask(state *planState, task models.Task) {
	stop := state.startMonitor(task.ID)
	ticker := time.NewTicker(c.cfg.ReplanCheckInterval)
	defer ticker.Stop()

	started := time.Now()
	expected := make(map[string]bool, len(task.Files))
	for _, f := range task.Files {
		expected[f] = true
	}

	for {
		select {
		case <-stop:
			return
		case <-state.cancelCh:
			return
		case <-ticker.C:
			c.cfg.Replanner.Evaluate(models.ExecutionContext{
				TaskID:            task.ID,
				EstimatedDuration: time.Duration(task.EstimatedMinutes) * time.Minute,
				ElapsedDuration:   time.Since(started),
				Iteration:         task.Iteration,
				ExpectedFiles:     expected,
				AgentFeedback:     task.Description,
			})
		}
	}
}

func (c *Coordinator) publishReplanRequested(taskID, trigger string, confidence float64) {
	if c.cfg.EventBus == nil {
		return
	}
	c.cfg.EventBus.Publish(models.Event{
		Kind:   models.EventReplanRequested,
		TaskID: taskID,
		Payload: models.ReplanRequestedPayload{
			Trigger:    trigger,
			Confidence: confidence,
		},
	})
}

// onReplanDecision reacts to the Replanner's aggregated decision for a
// watched task. An "escalate" action surfaces an immediate human review
// rather than waiting for the task to otherwise fail or finish; other
// actions are recorded for Status() visibility only, since the pool does
// not currently expose a way to redirect or abort a task mid-flight.
func (c *Coordinator) onReplanDecision(evt models.Event) {
	payload, ok := evt.Payload.(models.ReplanDecisionPayload)
	if !ok {
		return
	}
	state := c.stateForTask(evt.TaskID)
	if state == nil {
		return
	}
	state.recordDecision(evt.TaskID, payload)
	c.cfg.Logger.LogReplanDecision(evt.TaskID, payload)

	if payload.ShouldReplan && payload.SuggestedAction == "escalate" {
		_, _ = c.cfg.Review.Request(evt.TaskID, models.ReasonManual, models.ReviewContext{
			SuggestedAction: payload.SuggestedAction,
		})
	}
}

// onReviewResolved reacts to a human decision on a task this coordinator
// routed to review. Approval marks the task done; rejection resubmits it
// to the coder with the reviewer's feedback folded into the task
// description, per spec.md §4.13's fixIssues path.
func (c *Coordinator) onReviewResolved(evt models.Event) {
	payload, ok := evt.Payload.(models.ReviewResolvedPayload)
	if !ok {
		return
	}
	state := c.stateForTask(evt.TaskID)
	if state == nil {
		return
	}
	task, ok := state.takeReviewPending(evt.TaskID)
	if !ok {
		return
	}

	c.cfg.Logger.LogReviewResolved(evt.TaskID, payload.Approved)

	if payload.Approved {
		state.markStatus(evt.TaskID, models.TaskDone)
		return
	}

	task.Description = task.Description + "\n\nReviewer feedback: " + payload.Feedback
	task.Iteration++
	state.markStatus(evt.TaskID, models.TaskQueued)
	c.cfg.Replanner.Watch(evt.TaskID)
	c.cfg.Pool.Submit(task, models.RoleCoder)
	go c.monitorTask(state, task)

	go func() {
		pending := map[string]bool{evt.TaskID: true}
		c.awaitWave(state, pending)
	}()
}

func (c *Coordinator) stateForTask(taskID string) *planState {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.plans {
		if s.containsTask(taskID) {
			return s
		}
	}
	return nil
}
