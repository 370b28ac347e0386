// Package vcs exposes the minimum set of git verbs the orchestration
// engine needs: branch, commit, diff, merge, and worktree management.
// Every verb shells out through internal/runner so timeouts, blocked
// commands, and tree-kill semantics apply uniformly.
package vcs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nexus-build/nexus/internal/runner"
)

// DefaultIdentityName/-Email are used to auto-configure commit identity in
// a worktree when no global identity is set, so commits never fail for
// lack of author metadata (spec.md §4.3).
const (
	DefaultIdentityName  = "nexus-agent"
	DefaultIdentityEmail = "nexus-agent@localhost"
)

// MergeConflictError is returned when a merge stops due to conflicting
// hunks; Output carries git's own conflict report for diagnostics.
type MergeConflictError struct {
	Branch string
	Output string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict merging %q", e.Branch)
}

// Adapter wraps a Runner with git-specific verbs scoped to a working
// directory (typically a worktree path).
type Adapter struct {
	run     *runner.Runner
	Timeout time.Duration
}

// NewAdapter builds an Adapter over the shared process runner.
func NewAdapter(run *runner.Runner) *Adapter {
	return &Adapter{run: run, Timeout: 60 * time.Second}
}

func (a *Adapter) git(ctx context.Context, workDir string, args ...string) (runner.ProcessResult, error) {
	cmd := "git " + strings.Join(quoteArgs(args), " ")
	return a.run.Run(ctx, cmd, runner.Options{WorkDir: workDir, Timeout: a.Timeout})
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\n\"'") {
			out[i] = strconv.Quote(a)
		} else {
			out[i] = a
		}
	}
	return out
}

// EnsureIdentity configures a local commit identity in workDir if neither
// a local nor global identity is already set.
func (a *Adapter) EnsureIdentity(ctx context.Context, workDir string) error {
	if _, err := a.git(ctx, workDir, "config", "user.name"); err == nil {
		return nil
	}
	if _, err := a.git(ctx, workDir, "config", "--local", "user.name", DefaultIdentityName); err != nil {
		return fmt.Errorf("configure local user.name: %w", err)
	}
	if _, err := a.git(ctx, workDir, "config", "--local", "user.email", DefaultIdentityEmail); err != nil {
		return fmt.Errorf("configure local user.email: %w", err)
	}
	return nil
}

// CreateBranch creates branch from base (or HEAD if base is empty) without
// switching to it.
func (a *Adapter) CreateBranch(ctx context.Context, workDir, branch, base string) error {
	args := []string{"branch", branch}
	if base != "" {
		args = append(args, base)
	}
	_, err := a.git(ctx, workDir, args...)
	if err != nil {
		return fmt.Errorf("create branch %q: %w", branch, err)
	}
	return nil
}

// DeleteBranch force-deletes branch.
func (a *Adapter) DeleteBranch(ctx context.Context, workDir, branch string) error {
	_, err := a.git(ctx, workDir, "branch", "-D", branch)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", branch, err)
	}
	return nil
}

// AddAll stages every change in workDir.
func (a *Adapter) AddAll(ctx context.Context, workDir string) error {
	_, err := a.git(ctx, workDir, "add", "-A")
	if err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

// Commit creates a commit with message, auto-configuring identity first.
// Returns the new commit's hash.
func (a *Adapter) Commit(ctx context.Context, workDir, message string) (string, error) {
	if err := a.EnsureIdentity(ctx, workDir); err != nil {
		return "", err
	}
	if _, err := a.git(ctx, workDir, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return a.HeadCommit(ctx, workDir)
}

// HeadCommit returns the current HEAD commit hash.
func (a *Adapter) HeadCommit(ctx context.Context, workDir string) (string, error) {
	result, err := a.git(ctx, workDir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Diff returns the unified diff for workDir relative to ref (empty ref
// diffs the working tree against the index).
func (a *Adapter) Diff(ctx context.Context, workDir, ref string) (string, error) {
	args := []string{"diff"}
	if ref != "" {
		args = append(args, ref)
	}
	result, err := a.git(ctx, workDir, args...)
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return result.Stdout, nil
}

// ChangedFiles lists tracked files touched relative to ref (empty ref
// compares the working tree against the index, as Diff does). Untracked
// files are not listed.
func (a *Adapter) ChangedFiles(ctx context.Context, workDir, ref string) ([]string, error) {
	args := []string{"diff", "--name-only"}
	if ref != "" {
		args = append(args, ref)
	}
	result, err := a.git(ctx, workDir, args...)
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only: %w", err)
	}
	trimmed := strings.TrimSpace(result.Stdout)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// Merge merges branch into the current branch of workDir using a merge
// commit (no fast-forward), so history always records the task boundary.
func (a *Adapter) Merge(ctx context.Context, workDir, branch string) error {
	result, err := a.git(ctx, workDir, "merge", "--no-ff", "-m", "merge: "+branch, branch)
	if err != nil {
		if isConflict(result.Stdout + result.Stderr) {
			_, _ = a.git(ctx, workDir, "merge", "--abort")
			return &MergeConflictError{Branch: branch, Output: result.Stdout + result.Stderr}
		}
		return fmt.Errorf("merge %q: %w", branch, err)
	}
	return nil
}

// MergeLeaveConflicts attempts the same merge as Merge but, on conflict,
// leaves the conflict markers in the working tree instead of aborting —
// the shape a conflict-resolution tool (human or agent) needs to act on.
// The caller is responsible for either committing a resolution or
// aborting via the underlying git state.
func (a *Adapter) MergeLeaveConflicts(ctx context.Context, workDir, branch string) error {
	result, err := a.git(ctx, workDir, "merge", "--no-ff", "-m", "merge: "+branch, branch)
	if err != nil {
		if isConflict(result.Stdout + result.Stderr) {
			return &MergeConflictError{Branch: branch, Output: result.Stdout + result.Stderr}
		}
		return fmt.Errorf("merge %q: %w", branch, err)
	}
	return nil
}

// AbortMerge discards an in-progress conflicted merge.
func (a *Adapter) AbortMerge(ctx context.Context, workDir string) error {
	_, err := a.git(ctx, workDir, "merge", "--abort")
	return err
}

func isConflict(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "conflict") || strings.Contains(lower, "automatic merge failed")
}

// WorktreeAdd materializes a new worktree at path on a new branch created
// from base (HEAD when base is empty). It fails if branch already exists.
func (a *Adapter) WorktreeAdd(ctx context.Context, repoDir, path, branch, base string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if base != "" {
		args = append(args, base)
	}
	_, err := a.git(ctx, repoDir, args...)
	if err != nil {
		return fmt.Errorf("worktree add %q: %w", path, err)
	}
	return nil
}

// WorktreeRemove removes the worktree at path, force-discarding any
// uncommitted changes it holds.
func (a *Adapter) WorktreeRemove(ctx context.Context, repoDir, path string) error {
	_, err := a.git(ctx, repoDir, "worktree", "remove", "--force", path)
	if err != nil {
		return fmt.Errorf("worktree remove %q: %w", path, err)
	}
	return nil
}

// WorktreeList returns the paths of all worktrees known to repoDir's repo.
func (a *Adapter) WorktreeList(ctx context.Context, repoDir string) ([]string, error) {
	result, err := a.git(ctx, repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("worktree list: %w", err)
	}
	var paths []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}

// IsClean reports whether workDir has no uncommitted changes.
func (a *Adapter) IsClean(ctx context.Context, workDir string) (bool, error) {
	result, err := a.git(ctx, workDir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(result.Stdout) == "", nil
}
