package qa

import (
	"context"
	"time"

	"github.com/nexus-build/nexus/internal/models"
)

// DefaultMaxIterations is the hard ceiling on loop iterations; under no
// circumstances does the loop spin forever (spec.md §4.6).
const DefaultMaxIterations = 50

// Coder is the narrow contract the loop needs from the Coder agent: given
// the failed stage's normalized errors, attempt a fix in place.
type Coder interface {
	FixIssues(ctx context.Context, workDir string, stageKind models.StageKind, errs []models.StageError) error
}

// VCS is the narrow contract the loop needs to compute the diff handed to
// the review stage.
type VCS interface {
	Diff(ctx context.Context, workDir, ref string) (string, error)
	ChangedFiles(ctx context.Context, workDir, ref string) ([]string, error)
}

// Loop drives a task's working tree through build, lint, test, and review
// in that fixed order, repairing between failures via the Coder agent,
// until all four pass or MaxIterations iterations have run.
type Loop struct {
	Build         StageRunner
	Lint          StageRunner
	Test          StageRunner
	Review        *ReviewRunner
	Coder         Coder
	VCS           VCS
	MaxIterations int
	BaseRef       string // git ref the review diff is computed against
}

func (l *Loop) maxIterations() int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return DefaultMaxIterations
}

// Run executes the state machine and returns the aggregated result. It
// never returns a non-nil error for a task that simply fails QA: that
// outcome is represented by QAResult.Success == false and
// QAResult.Escalated == true.
func (l *Loop) Run(ctx context.Context, taskID, workDir, testSelector string) models.QAResult {
	result := models.QAResult{TaskID: taskID}

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			result.Escalated = true
			return result
		}

		stage, ok := l.runIteration(ctx, workDir, testSelector, &result)
		if ok {
			result.Success = true
			result.Iterations = iteration
			return result
		}

		result.FinalErrors = stage.Errors
		if len(stage.Issues) > 0 {
			for _, issue := range stage.Issues {
				result.FinalErrors = append(result.FinalErrors, models.StageError{File: issue.File, Message: issue.Message})
			}
		}

		if iteration >= l.maxIterations() {
			result.Iterations = iteration
			result.Escalated = true
			return result
		}

		if l.Coder != nil {
			_ = l.Coder.FixIssues(ctx, workDir, stage.Kind, stage.Errors)
		}
	}
}

// runIteration runs build, lint, test, review in order, stopping at the
// first failure. Returns the failing stage's result and false, or the
// passing review stage and true.
func (l *Loop) runIteration(ctx context.Context, workDir, testSelector string, result *models.QAResult) (models.StageResult, bool) {
	stages := []struct {
		runner StageRunner
	}{
		{l.Build},
		{l.Lint},
		{l.Test},
	}

	for _, s := range stages {
		if s.runner == nil {
			continue
		}
		stageResult, err := s.runner.Run(ctx, workDir, testSelector)
		if err != nil {
			stageResult.Errors = append(stageResult.Errors, models.StageError{Message: err.Error()})
		}
		result.Stages = append(result.Stages, stageResult)
		if !stageResult.Passed {
			return stageResult, false
		}
	}

	reviewResult := l.runReview(ctx, workDir)
	result.Stages = append(result.Stages, reviewResult)
	if !reviewResult.Passed {
		return reviewResult, false
	}
	return reviewResult, true
}

func (l *Loop) runReview(ctx context.Context, workDir string) models.StageResult {
	if l.Review == nil {
		return models.StageResult{Kind: models.StageReview, Passed: true, Approved: true}
	}

	diff, changedFiles := "", []string(nil)
	if l.VCS != nil {
		diff, _ = l.VCS.Diff(ctx, workDir, l.BaseRef)
		changedFiles, _ = l.VCS.ChangedFiles(ctx, workDir, l.BaseRef)
	}

	start := time.Now()
	stageResult, err := l.Review.Run(ctx, diff, changedFiles)
	if err != nil {
		return models.StageResult{
			Kind:     models.StageReview,
			Duration: time.Since(start),
			Errors:   []models.StageError{{Message: err.Error()}},
		}
	}
	return stageResult
}
