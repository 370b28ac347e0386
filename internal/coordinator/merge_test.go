package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/models"
)

func TestMergePlansCombinesDistinctTaskSets(t *testing.T) {
	a := &models.Plan{ID: "a", Tasks: []models.Task{{ID: "t1", Title: "x", Description: "y"}}}
	b := &models.Plan{ID: "b", Tasks: []models.Task{{ID: "t2", Title: "x", Description: "y"}}}

	merged, err := MergePlans(a, b)
	require.NoError(t, err)
	assert.Len(t, merged.Tasks, 2)
}

func TestMergePlansRejectsConflictingTaskIDs(t *testing.T) {
	a := &models.Plan{ID: "a", Tasks: []models.Task{{ID: "t1", Title: "x", Description: "y"}}}
	b := &models.Plan{ID: "b", Tasks: []models.Task{{ID: "t1", Title: "x", Description: "y"}}}

	_, err := MergePlans(a, b)
	assert.Error(t, err)
}

func TestMergePlansRejectsResultingCycle(t *testing.T) {
	a := &models.Plan{ID: "a", Tasks: []models.Task{{ID: "t1", Title: "x", Description: "y", DependsOn: []string{"t2"}}}}
	b := &models.Plan{ID: "b", Tasks: []models.Task{{ID: "t2", Title: "x", Description: "y", DependsOn: []string{"t1"}}}}

	_, err := MergePlans(a, b)
	assert.Error(t, err)
}

func TestMergePlansSingleInputPassesThrough(t *testing.T) {
	a := &models.Plan{ID: "a", Tasks: []models.Task{{ID: "t1", Title: "x", Description: "y"}}}
	merged, err := MergePlans(a)
	require.NoError(t, err)
	assert.Same(t, a, merged)
}

func TestMergePlansRejectsEmptyInput(t *testing.T) {
	_, err := MergePlans()
	assert.Error(t, err)
}
