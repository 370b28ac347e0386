package qa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/models"
)

type fakeStage struct {
	kind    models.StageKind
	results []models.StageResult
	callIdx int
}

func (f *fakeStage) Kind() models.StageKind { return f.kind }

func (f *fakeStage) Run(ctx context.Context, workDir, testSelector string) (models.StageResult, error) {
	idx := f.callIdx
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.callIdx++
	return f.results[idx], nil
}

type fakeReviewAgent struct {
	verdicts []ReviewVerdict
	callIdx  int
}

func (f *fakeReviewAgent) Review(ctx context.Context, diff string, changedFiles []string) (ReviewVerdict, error) {
	idx := f.callIdx
	if idx >= len(f.verdicts) {
		idx = len(f.verdicts) - 1
	}
	f.callIdx++
	return f.verdicts[idx], nil
}

type countingCoder struct{ calls int }

func (c *countingCoder) FixIssues(ctx context.Context, workDir string, kind models.StageKind, errs []models.StageError) error {
	c.calls++
	return nil
}

func passResult(kind models.StageKind) models.StageResult {
	return models.StageResult{Kind: kind, Passed: true}
}

func TestLoopSucceedsWhenAllStagesPass(t *testing.T) {
	loop := &Loop{
		Build:  &fakeStage{kind: models.StageBuild, results: []models.StageResult{passResult(models.StageBuild)}},
		Lint:   &fakeStage{kind: models.StageLint, results: []models.StageResult{passResult(models.StageLint)}},
		Test:   &fakeStage{kind: models.StageTest, results: []models.StageResult{passResult(models.StageTest)}},
		Review: &ReviewRunner{Agent: &fakeReviewAgent{verdicts: []ReviewVerdict{{Approved: true}}}},
	}

	result := loop.Run(context.Background(), "t1", "/tmp/wt", "")
	assert.True(t, result.Success)
	assert.False(t, result.Escalated)
	assert.Equal(t, 1, result.Iterations)
	require.Len(t, result.Stages, 4)
}

func TestLoopRepairsThenSucceeds(t *testing.T) {
	coder := &countingCoder{}
	loop := &Loop{
		Build: &fakeStage{kind: models.StageBuild, results: []models.StageResult{
			{Kind: models.StageBuild, Passed: false, Errors: []models.StageError{{Message: "syntax error"}}},
			passResult(models.StageBuild),
		}},
		Lint:   &fakeStage{kind: models.StageLint, results: []models.StageResult{passResult(models.StageLint)}},
		Test:   &fakeStage{kind: models.StageTest, results: []models.StageResult{passResult(models.StageTest)}},
		Review: &ReviewRunner{Agent: &fakeReviewAgent{verdicts: []ReviewVerdict{{Approved: true}}}},
		Coder:  coder,
	}

	result := loop.Run(context.Background(), "t1", "/tmp/wt", "")
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, coder.calls)
}

func TestLoopEscalatesAtIterationCeiling(t *testing.T) {
	failing := func() []models.StageResult {
		out := make([]models.StageResult, 5)
		for i := range out {
			out[i] = models.StageResult{Kind: models.StageBuild, Passed: false, Errors: []models.StageError{{Message: "still broken"}}}
		}
		return out
	}
	loop := &Loop{
		Build:         &fakeStage{kind: models.StageBuild, results: failing()},
		MaxIterations: 3,
		Coder:         &countingCoder{},
	}

	result := loop.Run(context.Background(), "t1", "/tmp/wt", "")
	assert.False(t, result.Success)
	assert.True(t, result.Escalated)
	assert.Equal(t, 3, result.Iterations)
	assert.NotEmpty(t, result.FinalErrors)
}

func TestReviewBlockingRule(t *testing.T) {
	assert.True(t, HasBlockingIssues([]models.ReviewIssue{{Severity: models.SeverityCritical}}))
	assert.False(t, HasBlockingIssues([]models.ReviewIssue{{Severity: models.SeverityMajor}, {Severity: models.SeverityMajor}}))
	assert.True(t, HasBlockingIssues([]models.ReviewIssue{{Severity: models.SeverityMajor}, {Severity: models.SeverityMajor}, {Severity: models.SeverityMajor}}))
	assert.False(t, HasBlockingIssues([]models.ReviewIssue{{Severity: models.SeverityMinor}, {Severity: models.SeveritySuggestion}}))
}

func TestReviewRunnerOverridesApprovedFlagWhenBlocking(t *testing.T) {
	agent := &fakeReviewAgent{verdicts: []ReviewVerdict{{
		Approved: true, // self-reported, but has a critical issue
		Issues:   []models.ReviewIssue{{Severity: models.SeverityCritical, Message: "sql injection"}},
	}}}
	runner := &ReviewRunner{Agent: agent}

	result, err := runner.Run(context.Background(), "diff", nil)
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.True(t, result.HasBlockingIssues)
	assert.False(t, result.Passed)
}
