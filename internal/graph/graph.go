// Package graph resolves a task DAG into execution waves per spec.md
// §4.10: Kahn's algorithm, with a deterministic stable order within each
// wave.
package graph

import (
	"fmt"
	"sort"

	"github.com/nexus-build/nexus/internal/models"
)

// DefaultMaxConcurrency is a wave's MaxConcurrency when the caller passes
// zero; the Agent Pool's own Concurrency is the real bound, this is just
// the value recorded on the wave.
const DefaultMaxConcurrency = 10

// CycleError reports that a task set's DependsOn edges are not a DAG.
// Residual holds every submitted task ID when the upfront cycle check
// fails, or the task IDs the Kahn pass could not place in any wave; the
// Coordinator refuses to schedule rather than partially schedule a cyclic
// plan.
type CycleError struct {
	Residual []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency graph: cycle detected among tasks %v", e.Residual)
}

// priorityRank orders models.Priority from most to least urgent for the
// within-wave stable sort; lower ranks sort first.
var priorityRank = map[models.Priority]int{
	models.PriorityMust:   0,
	models.PriorityShould: 1,
	models.PriorityCould:  2,
	models.PriorityWont:   3,
}

// Resolve computes execution waves for tasks via Kahn's algorithm. Within
// a wave, order is stable: priority descending (MoSCoW order), then
// original slice position — the output is deterministic for a given
// input, per spec.md §4.10.
func Resolve(tasks []models.Task, maxConcurrency int) ([]models.Wave, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	if models.HasCyclicDependencies(tasks) {
		return nil, &CycleError{Residual: taskIDs(tasks)}
	}

	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !known[dep] {
				continue // dangling reference: not this package's concern
			}
			dependents[dep] = append(dependents[dep], t.ID)
			inDegree[t.ID]++
		}
	}

	removed := make(map[string]bool, len(tasks))
	var waves []models.Wave
	for len(removed) < len(tasks) {
		var ready []models.Task
		for _, t := range tasks {
			if removed[t.ID] || inDegree[t.ID] > 0 {
				continue
			}
			ready = append(ready, t)
		}
		if len(ready) == 0 {
			var residual []string
			for _, t := range tasks {
				if !removed[t.ID] {
					residual = append(residual, t.ID)
				}
			}
			return nil, &CycleError{Residual: residual}
		}

		sort.SliceStable(ready, func(i, j int) bool {
			return priorityRank[ready[i].Priority] < priorityRank[ready[j].Priority]
		})

		ids := make([]string, len(ready))
		for i, t := range ready {
			ids[i] = t.ID
		}
		for _, t := range ready {
			removed[t.ID] = true
			for _, dependent := range dependents[t.ID] {
				inDegree[dependent]--
			}
		}

		waves = append(waves, models.Wave{
			Index:          len(waves),
			TaskIDs:        ids,
			MaxConcurrency: maxConcurrency,
		})
	}
	return waves, nil
}

func taskIDs(tasks []models.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
