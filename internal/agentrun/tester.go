package agentrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/vcs"
)

const testerSystemPromptBody = `You are the testing agent in an autonomous build pipeline. You may only
create or modify test files (files matching the project's test-file
convention, e.g. *_test.go). You never touch production code.

Given the coder's summary of what changed, propose or update the tests
that exercise it. Prefer extending existing test files over adding new
ones unless the change introduces a genuinely new unit of behavior.`

// Tester proposes or updates tests in response to the coder's output.
// Its own writes are constrained to test files by the system prompt; the
// build/test stage runners verify the result, not this type.
type Tester struct {
	Loop *BoundedLoop
	VCS  *vcs.Adapter
}

// ProposeTests runs the tester against the coder's summary of changes in
// worktree, committing any resulting test file changes.
func (t *Tester) ProposeTests(ctx context.Context, task models.Task, worktree models.WorktreeHandle, coderSummary string) (TesterResult, error) {
	prompt := xmlSection("coder_output", fmt.Sprintf(
		"Task: %s\nCoder summary: %s\nDeclared files: %s",
		task.Title, coderSummary, strings.Join(task.Files, ", "),
	))

	result, err := t.Loop.Run(ctx, models.RoleTester, withPreamble(testerSystemPromptBody), prompt)
	if err != nil {
		return TesterResult{Iterations: result.Iterations, TokenUsage: result.Usage}, err
	}

	out := TesterResult{
		Success:    result.Response.Status == "success",
		Output:     result.Response.Output,
		Iterations: result.Iterations,
		TokenUsage: result.Usage,
	}
	if !out.Success {
		return out, fmt.Errorf("tester reported failure: %s", strings.Join(result.Response.Errors, "; "))
	}

	clean, err := t.VCS.IsClean(ctx, worktree.Path)
	if err != nil {
		return out, fmt.Errorf("check worktree status: %w", err)
	}
	if clean {
		return out, nil
	}
	changed, err := t.VCS.ChangedFiles(ctx, worktree.Path, "")
	if err != nil {
		return out, fmt.Errorf("list changed files: %w", err)
	}
	if err := t.VCS.AddAll(ctx, worktree.Path); err != nil {
		return out, err
	}
	if _, err := t.VCS.Commit(ctx, worktree.Path, fmt.Sprintf("test: %s", task.Title)); err != nil {
		return out, err
	}
	out.FilesChanged = changed
	return out, nil
}
