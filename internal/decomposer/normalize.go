package decomposer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-build/nexus/internal/models"
)

// candidatesToTasks assigns identity and resolves title-based depends_on
// references into task IDs. The planning LLM has no way to know IDs in
// advance, so it references prerequisites by title; this is the one place
// that translation happens.
func candidatesToTasks(feature models.Feature, candidates []candidateTask) []models.Task {
	tasks := make([]models.Task, 0, len(candidates))
	idByTitle := make(map[string]string, len(candidates))
	now := time.Now()

	for _, c := range candidates {
		id := uuid.NewString()
		idByTitle[normalizeTitle(c.Title)] = id
		tasks = append(tasks, models.Task{
			ID:               id,
			FeatureID:        feature.ID,
			Title:            c.Title,
			Description:      c.Description,
			Files:            c.Files,
			EstimatedMinutes: c.EstimatedMinutes,
			Priority:         resolvePriority(c.Priority, feature.Priority),
			Status:           models.TaskPending,
			CreatedAt:        now,
		})
	}

	for i, c := range candidates {
		for _, dep := range c.DependsOn {
			id, ok := idByTitle[normalizeTitle(dep)]
			if !ok || id == tasks[i].ID {
				continue
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, id)
		}
	}
	return tasks
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func resolvePriority(candidate string, fallback models.Priority) models.Priority {
	p := models.Priority(strings.ToLower(strings.TrimSpace(candidate)))
	switch p {
	case models.PriorityMust, models.PriorityShould, models.PriorityCould, models.PriorityWont:
		return p
	default:
		if fallback == "" {
			return models.PriorityShould
		}
		return fallback
	}
}

// normalizeDependencies deduplicates each task's prerequisites and drops
// self-prerequisites, per spec.md §4.9 step 4.
func normalizeDependencies(tasks []models.Task) []models.Task {
	for i := range tasks {
		seen := make(map[string]bool, len(tasks[i].DependsOn))
		deduped := tasks[i].DependsOn[:0]
		for _, dep := range tasks[i].DependsOn {
			if dep == tasks[i].ID || seen[dep] {
				continue
			}
			seen[dep] = true
			deduped = append(deduped, dep)
		}
		tasks[i].DependsOn = deduped
	}
	return tasks
}
