package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/models"
)

func TestResolveProducesSequentialWavesForChain(t *testing.T) {
	tasks := []models.Task{
		{ID: "a", Priority: models.PriorityShould},
		{ID: "b", Priority: models.PriorityShould, DependsOn: []string{"a"}},
		{ID: "c", Priority: models.PriorityShould, DependsOn: []string{"b"}},
	}

	waves, err := Resolve(tasks, 0)
	require.NoError(t, err)
	require.Len(t, waves, 3)
	assert.Equal(t, []string{"a"}, waves[0].TaskIDs)
	assert.Equal(t, []string{"b"}, waves[1].TaskIDs)
	assert.Equal(t, []string{"c"}, waves[2].TaskIDs)
	for i, w := range waves {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, DefaultMaxConcurrency, w.MaxConcurrency)
	}
}

func TestResolveGroupsIndependentTasksIntoOneWave(t *testing.T) {
	tasks := []models.Task{
		{ID: "a", Priority: models.PriorityShould},
		{ID: "b", Priority: models.PriorityShould},
		{ID: "c", Priority: models.PriorityShould, DependsOn: []string{"a", "b"}},
	}

	waves, err := Resolve(tasks, 4)
	require.NoError(t, err)
	require.Len(t, waves, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, waves[0].TaskIDs)
	assert.Equal(t, []string{"c"}, waves[1].TaskIDs)
	assert.Equal(t, 4, waves[0].MaxConcurrency)
}

func TestResolveOrdersWaveByPriorityThenInsertion(t *testing.T) {
	tasks := []models.Task{
		{ID: "could-1", Priority: models.PriorityCould},
		{ID: "must-1", Priority: models.PriorityMust},
		{ID: "should-1", Priority: models.PriorityShould},
		{ID: "must-2", Priority: models.PriorityMust},
	}

	waves, err := Resolve(tasks, 0)
	require.NoError(t, err)
	require.Len(t, waves, 1)
	assert.Equal(t, []string{"must-1", "must-2", "should-1", "could-1"}, waves[0].TaskIDs)
}

func TestResolveRejectsCyclicDependencies(t *testing.T) {
	tasks := []models.Task{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}

	_, err := Resolve(tasks, 0)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Residual)
}

func TestResolveIgnoresDanglingDependencies(t *testing.T) {
	tasks := []models.Task{
		{ID: "a", DependsOn: []string{"nonexistent"}},
	}

	waves, err := Resolve(tasks, 0)
	require.NoError(t, err)
	require.Len(t, waves, 1)
	assert.Equal(t, []string{"a"}, waves[0].TaskIDs)
}

func TestResolveEmptyTaskSet(t *testing.T) {
	waves, err := Resolve(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, waves)
}

func TestResolveIsDeterministicAcrossRuns(t *testing.T) {
	tasks := []models.Task{
		{ID: "a", Priority: models.PriorityMust},
		{ID: "b", Priority: models.PriorityShould, DependsOn: []string{"a"}},
		{ID: "c", Priority: models.PriorityCould, DependsOn: []string{"a"}},
	}

	first, err := Resolve(tasks, 0)
	require.NoError(t, err)
	second, err := Resolve(tasks, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
