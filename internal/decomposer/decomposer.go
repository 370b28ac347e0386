// Package decomposer turns a Feature into a DAG of Tasks sized to fit a
// target effort budget per spec.md §4.9.
package decomposer

import (
	"context"
	"fmt"

	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/models"
)

// DefaultTaskBudgetMinutes is the target per-task effort ceiling when
// Decomposer.TaskBudgetMinutes is unset.
const DefaultTaskBudgetMinutes = 30

// Decomposer asks the LLM for a candidate task breakdown, then applies a
// deterministic pass that enforces the effort budget regardless of what
// the model proposed.
type Decomposer struct {
	Client            *llm.Client
	TaskBudgetMinutes int
}

func (d *Decomposer) budget() int {
	if d.TaskBudgetMinutes <= 0 {
		return DefaultTaskBudgetMinutes
	}
	return d.TaskBudgetMinutes
}

// Decompose produces a task DAG for feature. A malformed or empty LLM
// response falls back to a single task covering the whole feature rather
// than failing the submission outright; a transport-level failure (after
// the client's own retry and circuit-breaker policy gives up) is
// propagated, since that's not a shape the fallback can paper over.
func (d *Decomposer) Decompose(ctx context.Context, feature models.Feature) ([]models.Task, error) {
	if err := feature.Validate(); err != nil {
		return nil, fmt.Errorf("decomposer: %w", err)
	}

	budget := d.budget()
	resp, chatErr := d.Client.Chat(ctx, models.RoleDecomposer, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildPrompt(feature, budget)},
	}, llm.Options{})
	if chatErr != nil {
		return nil, fmt.Errorf("decomposer: request candidate tasks: %w", chatErr)
	}

	candidates, parseErr := parseCandidates(resp.Content)
	if parseErr != nil {
		candidates = []candidateTask{{
			Title:            feature.Title,
			Description:      feature.Description,
			EstimatedMinutes: budget,
			Priority:         string(feature.Priority),
		}}
	}

	tasks := normalizeDependencies(candidatesToTasks(feature, candidates))
	return splitAndRewire(tasks, budget), nil
}

// splitAndRewire applies splitTask to every task and rewires any
// cross-task dependency that pointed at an original (now-subdivided)
// task ID onto that task's last piece, so a downstream task still waits
// for the whole original unit of work to finish.
func splitAndRewire(tasks []models.Task, budget int) []models.Task {
	type pieceSet struct {
		originalID string
		pieces     []models.Task
	}

	sets := make([]pieceSet, 0, len(tasks))
	lastPieceID := make(map[string]string, len(tasks))
	for _, t := range tasks {
		pieces := splitTask(t, budget)
		sets = append(sets, pieceSet{originalID: t.ID, pieces: pieces})
		lastPieceID[t.ID] = pieces[len(pieces)-1].ID
	}

	var out []models.Task
	for _, set := range sets {
		out = append(out, set.pieces...)
	}
	for i := range out {
		for j, dep := range out[i].DependsOn {
			if resolved, ok := lastPieceID[dep]; ok {
				out[i].DependsOn[j] = resolved
			}
		}
	}
	return normalizeDependencies(out)
}
