// Package coordinator implements the Nexus Coordinator of spec.md §4.14:
// the top-level façade that turns a submitted Feature into a resolved,
// estimated Plan, drives it wave by wave through the Agent Pool, and
// reacts to replan decisions and review resolutions as they arrive on
// the event bus.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexus-build/nexus/internal/decomposer"
	"github.com/nexus-build/nexus/internal/estimation"
	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/graph"
	"github.com/nexus-build/nexus/internal/logger"
	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/pool"
	"github.com/nexus-build/nexus/internal/replanner"
	"github.com/nexus-build/nexus/internal/review"
	"github.com/nexus-build/nexus/internal/vcs"
	"github.com/nexus-build/nexus/internal/worktree"
)

// Config wires a Coordinator to the collaborators it drives. Decomposer
// through VCS are required. The remaining fields are optional: BudgetGate
// disables the wave-level budget check when nil, and the intervals and
// Logger fall back to the defaults noted on each.
type Config struct {
	Decomposer *decomposer.Decomposer
	Estimator  *estimation.Estimator
	Pool       *pool.Pool
	Replanner  *replanner.Replanner
	Review     *review.Service
	EventBus   *eventbus.Bus
	VCS        *vcs.Adapter

	// WorktreeManager and BaseBranch are required only when
	// CommitVerifier is set: verification inspects a task's detached
	// worktree after a clean merge, which requires the pool to be
	// configured with DetachWorktrees so the tree survives long enough
	// for the Coordinator to read it. The Coordinator reclaims it
	// afterward either way.
	WorktreeManager *worktree.Manager
	BaseBranch      string
	CommitVerifier  *CommitVerifier

	// MaxWaveConcurrency is recorded as each resolved wave's
	// MaxConcurrency (graph.Resolve substitutes its default when zero).
	// A wave's tasks are all submitted to the pool together; the pool's
	// own Concurrency bounds how many of them run at once.
	MaxWaveConcurrency int

	// BudgetGate, if set, is consulted before each wave is dispatched.
	BudgetGate *BudgetGate

	// PollInterval is how often a running plan polls the pool for wave
	// completion. Defaults to 500ms.
	PollInterval time.Duration

	// ReplanCheckInterval is how often an in-flight task is re-evaluated
	// against the Replanner's triggers. Defaults to 2 minutes.
	ReplanCheckInterval time.Duration

	// Logger receives progress events. Defaults to a no-op logger.
	Logger logger.Logger
}

// Coordinator is the Nexus Coordinator. Zero value is not usable;
// construct with New.
type Coordinator struct {
	cfg Config

	mu    sync.Mutex
	plans map[string]*planState

	shuttingDown bool
}

// New constructs a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ReplanCheckInterval <= 0 {
		cfg.ReplanCheckInterval = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Multi{}
	}
	c := &Coordinator{cfg: cfg, plans: make(map[string]*planState)}
	if cfg.EventBus != nil {
		cfg.EventBus.Subscribe(models.EventReplanDecision, c.onReplanDecision)
		cfg.EventBus.Subscribe(models.EventReviewResolved, c.onReviewResolved)
	}
	return c
}

// PlanHandle is an opaque reference to one submitted plan's run.
type PlanHandle struct {
	id string
}

// ID returns the plan's identifier, stable for the life of the run.
func (h PlanHandle) ID() string { return h.id }

// SubmitFeature decomposes feature into a task DAG, resolves it into
// waves, estimates each task's duration, and begins dispatching waves to
// the Agent Pool. It returns immediately with a handle; use Status to
// observe progress.
func (c *Coordinator) SubmitFeature(ctx context.Context, feature models.Feature) (PlanHandle, error) {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return PlanHandle{}, fmt.Errorf("coordinator: shutting down, not accepting new submissions")
	}
	c.mu.Unlock()

	if err := feature.Validate(); err != nil {
		return PlanHandle{}, fmt.Errorf("coordinator: %w", err)
	}

	tasks, err := c.cfg.Decomposer.Decompose(ctx, feature)
	if err != nil {
		return PlanHandle{}, fmt.Errorf("coordinator: decompose: %w", err)
	}

	for i := range tasks {
		tasks[i].EstimatedMinutes = c.cfg.Estimator.Estimate(tasks[i])
	}

	waves, err := graph.Resolve(tasks, c.cfg.MaxWaveConcurrency)
	if err != nil {
		return PlanHandle{}, fmt.Errorf("coordinator: resolve: %w", err)
	}

	plan := &models.Plan{
		ID:      feature.ID,
		Feature: feature,
		Tasks:   tasks,
		Waves:   waves,
	}

	state := newPlanState(plan)
	c.mu.Lock()
	c.plans[plan.ID] = state
	c.mu.Unlock()

	go c.run(state)

	return PlanHandle{id: plan.ID}, nil
}

// SubmitFeatures decomposes and merges several features into a single
// plan before resolving and dispatching it, so tasks from different
// features that target the same integration branch are scheduled
// against one shared dependency graph instead of racing independent
// plans against each other.
func (c *Coordinator) SubmitFeatures(ctx context.Context, features []models.Feature) (PlanHandle, error) {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return PlanHandle{}, fmt.Errorf("coordinator: shutting down, not accepting new submissions")
	}
	c.mu.Unlock()

	if len(features) == 0 {
		return PlanHandle{}, fmt.Errorf("coordinator: no features to submit")
	}

	plans := make([]*models.Plan, 0, len(features))
	for _, feature := range features {
		if err := feature.Validate(); err != nil {
			return PlanHandle{}, fmt.Errorf("coordinator: %w", err)
		}
		tasks, err := c.cfg.Decomposer.Decompose(ctx, feature)
		if err != nil {
			return PlanHandle{}, fmt.Errorf("coordinator: decompose %q: %w", feature.ID, err)
		}
		for i := range tasks {
			tasks[i].EstimatedMinutes = c.cfg.Estimator.Estimate(tasks[i])
		}
		plans = append(plans, &models.Plan{ID: feature.ID, Feature: feature, Tasks: tasks})
	}

	merged, err := MergePlans(plans...)
	if err != nil {
		return PlanHandle{}, fmt.Errorf("coordinator: %w", err)
	}

	waves, err := graph.Resolve(merged.Tasks, c.cfg.MaxWaveConcurrency)
	if err != nil {
		return PlanHandle{}, fmt.Errorf("coordinator: resolve: %w", err)
	}
	merged.Waves = waves
	merged.ID = mergedPlanID(features)

	state := newPlanState(merged)
	c.mu.Lock()
	c.plans[merged.ID] = state
	c.mu.Unlock()

	go c.run(state)

	return PlanHandle{id: merged.ID}, nil
}

func mergedPlanID(features []models.Feature) string {
	id := "merged"
	for _, f := range features {
		id += "-" + f.ID
	}
	return id
}

// Status reports the current progress of a submitted plan.
func (c *Coordinator) Status(handle PlanHandle) (models.PlanStatus, error) {
	state, ok := c.lookup(handle)
	if !ok {
		return models.PlanStatus{}, fmt.Errorf("coordinator: unknown plan %q", handle.id)
	}
	return state.snapshot(), nil
}

// Done returns a channel that closes once handle's plan reaches a
// terminal state (drained, blocked, or cancelled), so a caller can await
// completion without polling Status in a tight loop.
func (c *Coordinator) Done(handle PlanHandle) (<-chan struct{}, error) {
	state, ok := c.lookup(handle)
	if !ok {
		return nil, fmt.Errorf("coordinator: unknown plan %q", handle.id)
	}
	return state.done, nil
}

// Cancel cooperatively aborts a running plan. It marks the plan
// cancelled and waits for the current wave's in-flight tasks to reach a
// terminal state before returning, so no merge started before Cancel is
// still running after it returns.
func (c *Coordinator) Cancel(handle PlanHandle) error {
	state, ok := c.lookup(handle)
	if !ok {
		return fmt.Errorf("coordinator: unknown plan %q", handle.id)
	}
	state.cancel()
	<-state.done
	return nil
}

// Shutdown stops accepting new submissions, waits up to deadline for all
// running plans to drain, then shuts the pool down with whatever time is
// left. Shutdown itself removes no worktrees: each task's worktree is
// released when that task finishes.
func (c *Coordinator) Shutdown(deadline time.Duration) error {
	c.mu.Lock()
	c.shuttingDown = true
	states := make([]*planState, 0, len(c.plans))
	for _, s := range c.plans {
		states = append(states, s)
	}
	c.mu.Unlock()

	deadlineAt := time.Now().Add(deadline)
	for _, s := range states {
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			remaining = 0
		}
		select {
		case <-s.done:
		case <-time.After(remaining):
		}
	}

	return c.cfg.Pool.Shutdown(time.Until(deadlineAt))
}

func (c *Coordinator) lookup(handle PlanHandle) (*planState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.plans[handle.id]
	return s, ok
}
