package agentrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/vcs"
)

// coderSystemPromptBody enforces the minimal-diff discipline of spec.md §4.7:
// stay inside the declared files, make the smallest coherent change, and
// stop once the task is done rather than gold-plating.
const coderSystemPromptBody = `You are the coding agent in an autonomous build pipeline. You are the
only agent permitted to modify non-test files in this working tree.

Rules:
- Make the minimal coherent change that satisfies the task description.
- Stay within the files the task declares unless a change is impossible
  without touching an adjacent file; if so, explain why in "summary".
- Do not refactor or reformat code the task doesn't ask you to touch.
- Stop and report "success" once the change is complete; don't keep
  iterating looking for more to do.`

// Coder wraps a BoundedLoop with the coder role's prompts and commits its
// own output. It implements qa.Coder (FixIssues) so the QA loop can drive
// repairs without importing this package.
type Coder struct {
	Loop *BoundedLoop
	VCS  *vcs.Adapter
}

// Execute runs the coder against task inside worktree, committing any
// resulting changes on success.
func (c *Coder) Execute(ctx context.Context, task models.Task, worktree models.WorktreeHandle) (CoderResult, error) {
	prompt := xmlSection("task", fmt.Sprintf(
		"Title: %s\nDescription: %s\nDeclared files: %s",
		task.Title, task.Description, strings.Join(task.Files, ", "),
	))

	result, err := c.Loop.Run(ctx, models.RoleCoder, withPreamble(coderSystemPromptBody), prompt)
	if err != nil {
		return CoderResult{Iterations: result.Iterations, TokenUsage: result.Usage}, err
	}

	out := CoderResult{
		Success:    result.Response.Status == "success",
		Output:     result.Response.Output,
		Iterations: result.Iterations,
		TokenUsage: result.Usage,
	}
	if !out.Success {
		return out, fmt.Errorf("coder reported failure: %s", strings.Join(result.Response.Errors, "; "))
	}

	changed, err := c.commit(ctx, worktree.Path, task.Title)
	if err != nil {
		return out, err
	}
	out.FilesChanged = changed
	return out, nil
}

// FixIssues implements qa.Coder: given a failing stage's normalized
// errors, ask the coder to repair them in place and commit the result.
func (c *Coder) FixIssues(ctx context.Context, workDir string, stageKind models.StageKind, errs []models.StageError) error {
	var sb strings.Builder
	for _, e := range errs {
		if e.File != "" {
			fmt.Fprintf(&sb, "%s:%d: %s\n", e.File, e.Line, e.Message)
		} else {
			fmt.Fprintf(&sb, "%s\n", e.Message)
		}
	}
	prompt := xmlSection("stage_failure", fmt.Sprintf("Stage: %s\nErrors:\n%s", stageKind, sb.String()))

	result, err := c.Loop.Run(ctx, models.RoleCoder, withPreamble(coderSystemPromptBody), prompt)
	if err != nil {
		return err
	}
	if result.Response.Status != "success" {
		return fmt.Errorf("coder could not fix %s stage: %s", stageKind, strings.Join(result.Response.Errors, "; "))
	}
	_, err = c.commit(ctx, workDir, fmt.Sprintf("fix: repair %s stage failure", stageKind))
	return err
}

func (c *Coder) commit(ctx context.Context, workDir, message string) ([]string, error) {
	clean, err := c.VCS.IsClean(ctx, workDir)
	if err != nil {
		return nil, fmt.Errorf("check worktree status: %w", err)
	}
	if clean {
		return nil, nil
	}
	if err := c.VCS.AddAll(ctx, workDir); err != nil {
		return nil, err
	}
	changed, err := c.VCS.ChangedFiles(ctx, workDir, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}
	if _, err := c.VCS.Commit(ctx, workDir, message); err != nil {
		return nil, err
	}
	return changed, nil
}
