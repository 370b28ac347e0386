// Package pool implements the Agent Pool of spec.md §4.8: a
// bounded-concurrency dispatcher from a priority task queue to
// role-specialized agent runners, binding each running task to its own
// worktree for the duration of the run.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nexus-build/nexus/internal/agentrun"
	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/qa"
	"github.com/nexus-build/nexus/internal/vcs"
	"github.com/nexus-build/nexus/internal/worktree"
)

// Config wires a Pool to the collaborators it dispatches work to. QALoop,
// Coder, and Merger are shared across every in-flight task; they must be
// safe for concurrent use (all three are, by construction — none hold
// mutable per-task state across calls).
type Config struct {
	// Concurrency bounds simultaneous in-flight tasks. Zero means
	// runtime.NumCPU().
	Concurrency int

	WorktreeManager *worktree.Manager
	VCS             *vcs.Adapter
	Coder           *agentrun.Coder
	Tester          *agentrun.Tester
	Reviewer        *agentrun.Reviewer
	QALoop          *qa.Loop
	Merger          *agentrun.Merger
	EventBus        *eventbus.Bus

	// IntegrationDir is the repository checkout the Merger merges
	// approved branches into.
	IntegrationDir string
	// BaseBranch is the branch new worktrees are cut from.
	BaseBranch string
	// DetachWorktrees, if true, leaves a task's worktree on disk after
	// completion instead of removing it (step 7 of the binding protocol
	// is "destroy or detach per config").
	DetachWorktrees bool

	// RoleCaps optionally bounds simultaneous in-flight tasks per role,
	// on top of the overall Concurrency bound. A role with no entry (or
	// an entry <= 0) is only bounded by Concurrency.
	RoleCaps map[models.AgentRole]int
}

// Pool is the bounded-concurrency dispatcher. Zero value is not usable;
// construct with New.
type Pool struct {
	cfg      Config
	sem      *semaphore.Weighted
	roleSems map[models.AgentRole]*semaphore.Weighted
	queue    *priorityQueue
	metrics  *Metrics

	mu          sync.Mutex
	inFlight    map[string]models.Task
	taskResults map[string]TaskOutcome

	group  *errgroup.Group
	cancel context.CancelFunc
}

// TaskOutcome is the terminal record of one dispatched task, kept for
// Status() lookups after the task leaves in-flight.
type TaskOutcome struct {
	Task        models.Task
	QA          *models.QAResult
	Review      *models.ReviewRequest
	MergeCommit string // set iff the task's branch was cleanly merged
	Err         error
}

// New constructs a Pool. Call Start to begin dispatching.
func New(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	roleSems := make(map[models.AgentRole]*semaphore.Weighted, len(cfg.RoleCaps))
	for role, cap := range cfg.RoleCaps {
		if cap > 0 {
			roleSems[role] = semaphore.NewWeighted(int64(cap))
		}
	}
	return &Pool{
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(cfg.Concurrency)),
		roleSems:    roleSems,
		queue:       newPriorityQueue(),
		metrics:     newMetrics(),
		inFlight:    make(map[string]models.Task),
		taskResults: make(map[string]TaskOutcome),
	}
}

// Submit enqueues task for dispatch. roleHint selects which runner
// processes it; the zero value defaults to RoleCoder, the pipeline that
// runs a task through code, QA, and merge.
func (p *Pool) Submit(task models.Task, roleHint models.AgentRole) {
	if roleHint == "" {
		roleHint = models.RoleCoder
	}
	p.queue.push(task, roleHint)
	p.publish(models.Event{Kind: models.EventTaskQueued, TaskID: task.ID, Payload: models.TaskQueuedPayload{Priority: task.Priority}})
}

// Start begins the dispatch loop in the background. It returns
// immediately; call Shutdown to stop.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	group, groupCtx := errgroup.WithContext(ctx)
	p.group = group

	group.Go(func() error {
		p.dispatchLoop(groupCtx)
		return nil
	})
}

// Shutdown stops accepting new dispatch and waits up to deadline for
// in-flight tasks to finish.
func (p *Pool) Shutdown(deadline time.Duration) error {
	p.queue.close()
	if p.cancel == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	if deadline <= 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-time.After(deadline):
		p.cancel()
		<-done
		return fmt.Errorf("pool shutdown: deadline exceeded, remaining tasks cancelled")
	}
}

// Metrics returns a point-in-time snapshot of queue depth, in-flight
// count, and per-role utilization.
func (p *Pool) Metrics() Snapshot {
	p.metrics.setQueueLengths(p.queue.lengths())
	p.mu.Lock()
	p.metrics.setInFlight(len(p.inFlight))
	p.mu.Unlock()
	return p.metrics.snapshot()
}

// Outcome returns the terminal result recorded for taskID, if it has
// completed dispatch.
func (p *Pool) Outcome(taskID string) (TaskOutcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, ok := p.taskResults[taskID]
	return out, ok
}

func (p *Pool) dispatchLoop(ctx context.Context) {
	for {
		item, ok := p.queue.pop()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		roleSem := p.roleSems[item.roleHint]
		if roleSem != nil {
			if err := roleSem.Acquire(ctx, 1); err != nil {
				p.sem.Release(1)
				return
			}
		}

		item := item
		p.group.Go(func() error {
			defer p.sem.Release(1)
			if roleSem != nil {
				defer roleSem.Release(1)
			}
			p.runTask(ctx, item)
			return nil
		})
	}
}

func (p *Pool) runTask(ctx context.Context, item queuedTask) {
	task := item.task
	p.mu.Lock()
	p.inFlight[task.ID] = task
	p.mu.Unlock()
	p.metrics.incRole(item.roleHint)
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, task.ID)
		p.mu.Unlock()
		p.metrics.decRole(item.roleHint)
	}()

	// Only the default coder pipeline owns a worktree's lifecycle. A
	// direct Tester/Reviewer/Merger submission operates on a worktree an
	// earlier coder stage already created for the same task id — those
	// roles never materialize or release one themselves.
	var wt models.WorktreeHandle
	var err error
	ownsWorktree := item.roleHint == models.RoleCoder
	if ownsWorktree {
		wt, err = p.cfg.WorktreeManager.CreateWorktree(ctx, task.ID, p.cfg.BaseBranch)
	} else {
		var ok bool
		wt, ok = p.cfg.WorktreeManager.Get(task.ID)
		if !ok {
			err = fmt.Errorf("no existing worktree for task %q", task.ID)
		}
	}
	if err != nil {
		p.finish(task, TaskOutcome{Task: task, Err: fmt.Errorf("resolve worktree: %w", err)})
		return
	}
	releaseWorktree := func() {
		if !ownsWorktree || p.cfg.DetachWorktrees {
			return
		}
		_ = p.cfg.WorktreeManager.RemoveWorktree(ctx, task.ID)
	}

	start := time.Now()
	p.publish(models.Event{Kind: models.EventTaskStarted, TaskID: task.ID, Payload: models.TaskStartedPayload{
		WorktreeID: wt.Path,
		Role:       item.roleHint,
	}})

	var outcome TaskOutcome
	switch item.roleHint {
	case models.RoleTester:
		outcome = p.runTester(ctx, task, wt)
	case models.RoleReviewer:
		outcome = p.runReviewer(ctx, task, wt)
	case models.RoleMerger:
		outcome = p.runMerger(ctx, task, wt)
	default:
		outcome = p.runCoderPipeline(ctx, task, wt)
	}

	if outcome.Err != nil {
		p.publish(models.Event{Kind: models.EventTaskFailed, TaskID: task.ID, Payload: models.TaskFailedPayload{Reason: outcome.Err.Error()}})
	} else if outcome.Review != nil {
		p.publish(models.Event{Kind: models.EventReviewRequested, TaskID: task.ID, Payload: models.ReviewRequestedPayload{
			Reason:  outcome.Review.Reason,
			Context: outcome.Review.Context,
		}})
	} else {
		p.publish(models.Event{Kind: models.EventTaskCompleted, TaskID: task.ID, Payload: models.TaskCompletedPayload{Duration: time.Since(start)}})
	}

	releaseWorktree()
	p.finish(task, outcome)
}

func (p *Pool) finish(task models.Task, outcome TaskOutcome) {
	p.mu.Lock()
	p.taskResults[task.ID] = outcome
	p.mu.Unlock()
}

func (p *Pool) publish(evt models.Event) {
	if p.cfg.EventBus == nil {
		return
	}
	evt.Timestamp = time.Now()
	p.cfg.EventBus.Publish(evt)
}

// runCoderPipeline is the default binding protocol: coder executes, the
// QA loop drives build/lint/test/review to convergence, and on success
// the merger folds the branch into the integration branch.
func (p *Pool) runCoderPipeline(ctx context.Context, task models.Task, wt models.WorktreeHandle) TaskOutcome {
	if p.cfg.Coder == nil {
		return TaskOutcome{Task: task, Err: fmt.Errorf("no coder configured")}
	}
	if _, err := p.cfg.Coder.Execute(ctx, task, wt); err != nil {
		return TaskOutcome{Task: task, Err: fmt.Errorf("coder: %w", err)}
	}

	var qaResult models.QAResult
	if p.cfg.QALoop != nil {
		qaResult = p.cfg.QALoop.Run(ctx, task.ID, wt.Path, task.TestSelector)
	} else {
		qaResult = models.QAResult{TaskID: task.ID, Success: true}
	}

	if !qaResult.Success {
		return TaskOutcome{Task: task, QA: &qaResult, Review: &models.ReviewRequest{
			TaskID: task.ID,
			Reason: models.ReasonQAExhausted,
			Context: models.ReviewContext{
				QAIterations: qaResult.Iterations,
				LastErrors:   qaResult.FinalErrors,
			},
		}}
	}

	if p.cfg.Merger == nil {
		return TaskOutcome{Task: task, QA: &qaResult}
	}
	commit, review, err := p.cfg.Merger.Merge(ctx, p.cfg.IntegrationDir, wt)
	if err != nil {
		return TaskOutcome{Task: task, QA: &qaResult, Err: fmt.Errorf("merge: %w", err)}
	}
	return TaskOutcome{Task: task, QA: &qaResult, Review: review, MergeCommit: commit}
}

func (p *Pool) runTester(ctx context.Context, task models.Task, wt models.WorktreeHandle) TaskOutcome {
	if p.cfg.Tester == nil {
		return TaskOutcome{Task: task, Err: fmt.Errorf("no tester configured")}
	}
	if _, err := p.cfg.Tester.ProposeTests(ctx, task, wt, task.Description); err != nil {
		return TaskOutcome{Task: task, Err: err}
	}
	return TaskOutcome{Task: task}
}

func (p *Pool) runReviewer(ctx context.Context, task models.Task, wt models.WorktreeHandle) TaskOutcome {
	if p.cfg.Reviewer == nil || p.cfg.VCS == nil {
		return TaskOutcome{Task: task, Err: fmt.Errorf("no reviewer configured")}
	}
	diff, err := p.cfg.VCS.Diff(ctx, wt.Path, p.cfg.BaseBranch)
	if err != nil {
		return TaskOutcome{Task: task, Err: err}
	}
	changed, _ := p.cfg.VCS.ChangedFiles(ctx, wt.Path, p.cfg.BaseBranch)
	verdict, err := p.cfg.Reviewer.Review(ctx, diff, changed)
	if err != nil {
		return TaskOutcome{Task: task, Err: err}
	}
	if !verdict.Approved || qa.HasBlockingIssues(verdict.Issues) {
		return TaskOutcome{Task: task, Review: &models.ReviewRequest{
			TaskID: task.ID,
			Reason: models.ReasonManual,
		}}
	}
	return TaskOutcome{Task: task}
}

func (p *Pool) runMerger(ctx context.Context, task models.Task, wt models.WorktreeHandle) TaskOutcome {
	if p.cfg.Merger == nil {
		return TaskOutcome{Task: task, Err: fmt.Errorf("no merger configured")}
	}
	commit, review, err := p.cfg.Merger.Merge(ctx, p.cfg.IntegrationDir, wt)
	if err != nil {
		return TaskOutcome{Task: task, Err: err}
	}
	return TaskOutcome{Task: task, Review: review, MergeCommit: commit}
}
