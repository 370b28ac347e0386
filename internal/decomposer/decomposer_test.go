package decomposer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/models"
)

type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, role models.AgentRole, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	if p.err != nil {
		return llm.Response{}, p.err
	}
	return llm.Response{Content: p.reply, FinishReason: llm.FinishStop}, nil
}

func (p *scriptedProvider) CountTokens(text string) int { return len(text) / 4 }

func newDecomposer(reply string) *Decomposer {
	client := llm.NewClient(&scriptedProvider{reply: reply}, llm.ClientOptions{MaxRetries: 0}, nil)
	return &Decomposer{Client: client}
}

func feature() models.Feature {
	return models.Feature{ID: "f1", Title: "Add rate limiting", Description: "Limit requests per client.", Priority: models.PriorityMust}
}

func TestDecomposeResolvesTitleDependenciesToIDs(t *testing.T) {
	reply := `Here is the plan:
[
  {"title": "Add limiter middleware", "description": "Write the token bucket middleware.", "estimated_minutes": 20, "priority": "must"},
  {"title": "Wire limiter into router", "description": "Register the middleware.", "estimated_minutes": 10, "depends_on": ["Add limiter middleware"], "priority": "should"}
]`
	d := newDecomposer(reply)
	tasks, err := d.Decompose(context.Background(), feature())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byTitle := make(map[string]models.Task, len(tasks))
	for _, task := range tasks {
		byTitle[task.Title] = task
	}
	first := byTitle["Add limiter middleware"]
	second := byTitle["Wire limiter into router"]
	require.NotEmpty(t, first.ID)
	require.NotEmpty(t, second.ID)
	assert.Equal(t, []string{first.ID}, second.DependsOn)
	assert.Equal(t, models.PriorityMust, first.Priority)
	assert.Equal(t, models.PriorityShould, second.Priority)
	for _, task := range tasks {
		assert.Equal(t, "f1", task.FeatureID)
		assert.Equal(t, models.TaskPending, task.Status)
	}
}

func TestDecomposeFallsBackToSingleTaskOnMalformedOutput(t *testing.T) {
	d := newDecomposer("the model rambles without emitting any JSON array")
	tasks, err := d.Decompose(context.Background(), feature())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, feature().Title, tasks[0].Title)
	assert.Equal(t, feature().Description, tasks[0].Description)
}

func TestDecomposePropagatesTransportFailure(t *testing.T) {
	client := llm.NewClient(&scriptedProvider{err: errors.New("boom")}, llm.ClientOptions{MaxRetries: 0}, nil)
	d := &Decomposer{Client: client}
	_, err := d.Decompose(context.Background(), feature())
	require.Error(t, err)
}

func TestDecomposeSplitsOversizedTaskAlongBulletSteps(t *testing.T) {
	reply := `[{"title": "Build the importer", "description": "- parse the CSV\n- validate rows\n- write to the database\n", "estimated_minutes": 90, "priority": "must"}]`
	d := &Decomposer{Client: llm.NewClient(&scriptedProvider{reply: reply}, llm.ClientOptions{MaxRetries: 0}, nil), TaskBudgetMinutes: 30}
	tasks, err := d.Decompose(context.Background(), feature())
	require.NoError(t, err)
	require.Greater(t, len(tasks), 1)
	for _, task := range tasks {
		assert.LessOrEqual(t, task.EstimatedMinutes, 30)
	}
	assert.False(t, models.HasCyclicDependencies(tasks))
}

func TestDecomposeRejectsInvalidFeature(t *testing.T) {
	d := newDecomposer(`[]`)
	_, err := d.Decompose(context.Background(), models.Feature{})
	require.Error(t, err)
}
