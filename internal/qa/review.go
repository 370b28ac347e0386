package qa

import (
	"context"
	"time"

	"github.com/nexus-build/nexus/internal/models"
)

// ReviewAgent sends a diff to the LLM-backed review agent (internal/agentrun's
// Reviewer) and returns its structured verdict. Defined here, rather than
// importing internal/agentrun directly, so the QA package has no
// dependency on agent-loop machinery — only on the narrow contract it
// needs.
type ReviewAgent interface {
	Review(ctx context.Context, diff string, changedFiles []string) (ReviewVerdict, error)
}

// ReviewVerdict is the review agent's structured response before the
// blocking rule is applied.
type ReviewVerdict struct {
	Approved bool
	Issues   []models.ReviewIssue
}

// ReviewRunner sends changed files to the review agent and validates its
// self-reported Approved flag against the normative blocking rule: a
// stage fails if there is >= 1 critical issue, or > 2 major issues. Minor
// issues and suggestions never block, regardless of what the agent says.
type ReviewRunner struct {
	Agent   ReviewAgent
	Timeout time.Duration
}

func (r *ReviewRunner) Kind() models.StageKind { return models.StageReview }

func (r *ReviewRunner) Run(ctx context.Context, diff string, changedFiles []string) (models.StageResult, error) {
	start := time.Now()
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	verdict, err := r.Agent.Review(runCtx, diff, changedFiles)
	stage := models.StageResult{Kind: models.StageReview, Duration: time.Since(start)}
	if err != nil {
		if runCtx.Err() != nil {
			return timeoutResult(models.StageReview, start), nil
		}
		stage.Errors = []models.StageError{{Message: err.Error()}}
		return stage, nil
	}

	stage.Issues = verdict.Issues
	stage.HasBlockingIssues = HasBlockingIssues(verdict.Issues)
	stage.Approved = verdict.Approved && !stage.HasBlockingIssues
	stage.Passed = stage.Approved
	return stage, nil
}

// HasBlockingIssues applies the normative blocking rule: >= 1 critical
// issue, or > 2 major issues.
func HasBlockingIssues(issues []models.ReviewIssue) bool {
	var critical, major int
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityMajor:
			major++
		}
	}
	return critical >= 1 || major > 2
}
