package coordinator

import (
	"fmt"

	"github.com/nexus-build/nexus/internal/models"
)

// MergePlans combines multiple independently-submitted plans that target
// the same integration branch into a single plan, so their tasks share
// one wave schedule and the Agent Pool sees one coherent dependency
// graph instead of racing independent runs against the same branch.
// It rejects conflicting task IDs and any resulting cycle.
func MergePlans(plans ...*models.Plan) (*models.Plan, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("coordinator: no plans to merge")
	}
	if len(plans) == 1 {
		return plans[0], nil
	}

	seen := make(map[string]bool)
	merged := &models.Plan{ID: "merged", Tasks: []models.Task{}, Waves: []models.Wave{}}

	for _, p := range plans {
		if p == nil {
			continue
		}
		for _, t := range p.Tasks {
			if seen[t.ID] {
				return nil, fmt.Errorf("coordinator: conflicting task id %q across merged plans", t.ID)
			}
			seen[t.ID] = true
			merged.Tasks = append(merged.Tasks, t)
		}
	}

	if len(merged.Tasks) == 0 {
		return nil, fmt.Errorf("coordinator: merged plan has no tasks")
	}
	if models.HasCyclicDependencies(merged.Tasks) {
		return nil, fmt.Errorf("coordinator: merged plan contains a dependency cycle")
	}

	return merged, nil
}
