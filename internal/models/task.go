package models

import (
	"fmt"
	"time"
)

// TaskStatus is the runtime status of a Task, per spec.md §3.
type TaskStatus string

const (
	TaskPending        TaskStatus = "pending"
	TaskQueued         TaskStatus = "queued"
	TaskInProgress     TaskStatus = "in-progress"
	TaskAwaitingReview TaskStatus = "awaiting-review"
	TaskDone           TaskStatus = "done"
	TaskFailed         TaskStatus = "failed"
	TaskBlocked        TaskStatus = "blocked"
)

// Task is the atomic scheduling unit produced by the Decomposer.
type Task struct {
	ID          string
	FeatureID   string
	Title       string
	Description string
	Files       []string
	TestSelector string

	EstimatedMinutes int
	Priority         Priority
	DependsOn        []string // prerequisite task IDs; must form a DAG

	Status        TaskStatus
	Iteration     int
	WorktreeID    string // set iff Status == TaskInProgress
	AgentID       string // set iff Status == TaskInProgress
	MergeCommit   string // set iff Status == TaskDone

	CreatedAt time.Time
	StartedAt *time.Time
	FinishedAt *time.Time
}

// Validate enforces the Task invariants of spec.md §3 that can be checked
// locally (DAG-wide invariants such as no-cycles are checked by the
// Dependency Resolver over the full task set).
func (t *Task) Validate(maxIterations int) error {
	if t.ID == "" {
		return errEmptyField("task id")
	}
	if t.Title == "" {
		return errEmptyField("task title")
	}
	if t.Description == "" {
		return errEmptyField("task description")
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return fmt.Errorf("task %s: self-prerequisite", t.ID)
		}
	}
	if t.Status == TaskInProgress && (t.WorktreeID == "" || t.AgentID == "") {
		return fmt.Errorf("task %s: in-progress requires worktree and agent id", t.ID)
	}
	if t.Status == TaskDone && t.MergeCommit == "" {
		return fmt.Errorf("task %s: done requires merge commit", t.ID)
	}
	if maxIterations > 0 && t.Iteration > maxIterations {
		return fmt.Errorf("task %s: iteration %d exceeds maximum %d", t.ID, t.Iteration, maxIterations)
	}
	return nil
}

// CanSkip reports whether the task is already in a terminal, non-retryable
// state and need not be (re)dispatched.
func (t *Task) CanSkip() bool {
	return t.Status == TaskDone
}

// HasCyclicDependencies reports whether the given task set contains a
// dependency cycle. It is independent of wave calculation so it can be used
// for early validation (e.g. by the Dependency Resolver's upfront check
// and by plan merge in the Coordinator).
func HasCyclicDependencies(tasks []Task) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	colors := make(map[string]int, len(tasks))

	var dfs func(id string) bool
	dfs = func(id string) bool {
		colors[id] = gray
		task, ok := byID[id]
		if ok {
			for _, dep := range task.DependsOn {
				if _, exists := byID[dep]; !exists {
					continue
				}
				switch colors[dep] {
				case gray:
					return true
				case white:
					if dfs(dep) {
						return true
					}
				}
			}
		}
		colors[id] = black
		return false
	}

	for id := range byID {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}
	return false
}
