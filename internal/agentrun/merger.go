package agentrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/vcs"
)

const mergerSystemPromptBody = `You are the merge-conflict resolution agent in an autonomous build
pipeline. A merge has stopped with conflict markers left in the working
tree at the given path. Resolve every conflict marker, preserving the
intent of both sides where possible, then leave the tree in a state
ready to stage and commit. Report "error" if a conflict cannot be
resolved without a human decision.`

// Merger merges an approved worktree's branch into the integration
// branch. On conflict, it can optionally hand off to the LLM-assisted
// resolver (Loop) for a single resolution attempt before escalating to a
// human review request (spec.md §4.7).
type Merger struct {
	VCS  *vcs.Adapter
	Loop *BoundedLoop // optional; nil disables conflict auto-resolution
}

// Merge merges worktree's branch into integrationDir's current branch.
// On success it returns the merge commit hash. On an unresolved conflict
// it returns a populated ReviewRequest and a nil error — that outcome is
// not a runner failure, it's the designed escalation path.
func (m *Merger) Merge(ctx context.Context, integrationDir string, wt models.WorktreeHandle) (mergeCommit string, review *models.ReviewRequest, err error) {
	mergeErr := m.VCS.MergeLeaveConflicts(ctx, integrationDir, wt.Branch)
	if mergeErr == nil {
		commit, err := m.VCS.HeadCommit(ctx, integrationDir)
		if err != nil {
			return "", nil, err
		}
		return commit, nil, nil
	}

	var conflict *vcs.MergeConflictError
	if !errors.As(mergeErr, &conflict) {
		return "", nil, fmt.Errorf("merge %q: %w", wt.Branch, mergeErr)
	}

	if m.Loop != nil {
		if commit, resolved := m.attemptResolution(ctx, integrationDir, wt.Branch, conflict); resolved {
			return commit, nil, nil
		}
	}

	changed, _ := m.VCS.ChangedFiles(ctx, integrationDir, "")
	_ = m.VCS.AbortMerge(ctx, integrationDir)
	return "", &models.ReviewRequest{
		TaskID: wt.TaskID,
		Reason: models.ReasonMergeConflict,
		Context: models.ReviewContext{
			ConflictFiles: changed,
		},
	}, nil
}

// attemptResolution asks the LLM to resolve the conflict markers
// MergeLeaveConflicts left in workDir. It reports false if anything along
// the way fails, in which case the caller aborts and escalates to a
// human.
func (m *Merger) attemptResolution(ctx context.Context, workDir, branch string, conflict *vcs.MergeConflictError) (string, bool) {
	prompt := xmlSection("merge_conflict", fmt.Sprintf("Branch: %s\nGit output:\n%s", branch, conflict.Output))

	result, err := m.Loop.Run(ctx, models.RoleMerger, withPreamble(mergerSystemPromptBody), prompt)
	if err != nil || result.Response.Status != "success" {
		return "", false
	}

	if err := m.VCS.AddAll(ctx, workDir); err != nil {
		return "", false
	}
	// If markers are still unresolved git refuses the commit; that
	// failure is the signal to give up and escalate, same as any other
	// resolution error.
	commit, err := m.VCS.Commit(ctx, workDir, fmt.Sprintf("merge: %s (agent-resolved conflict)", branch))
	if err != nil {
		return "", false
	}
	return commit, true
}
