// Package worktree provides per-task filesystem isolation by
// materializing disjoint git worktrees, each on its own branch.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/vcs"
)

// Manager creates and tracks worktrees under RootDir, one per task.
// Invariant: at most one worktree exists per task ID at any time, and
// distinct worktrees share no files on disk (enforced by giving each its
// own directory and branch).
//
// A gofrs/flock file lock guards the registry so two Manager instances in
// different processes (e.g. a crashed-and-restarted coordinator) never
// race on worktree creation for the same repo.
type Manager struct {
	RepoDir string
	RootDir string
	vcs     *vcs.Adapter

	mu       sync.Mutex
	byTask   map[string]models.WorktreeHandle
	fileLock *flock.Flock
}

// NewManager prepares a Manager. RootDir is created if absent.
func NewManager(repoDir, rootDir string, adapter *vcs.Adapter) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create worktree root %q: %w", rootDir, err)
	}
	return &Manager{
		RepoDir:  repoDir,
		RootDir:  rootDir,
		vcs:      adapter,
		byTask:   make(map[string]models.WorktreeHandle),
		fileLock: flock.New(filepath.Join(rootDir, ".nexus-worktrees.lock")),
	}, nil
}

// CreateWorktree materializes a new worktree for taskID on a fresh branch
// cut from baseBranch (defaulting to the repo's current branch). Returns
// an error if a worktree already exists for taskID.
func (m *Manager) CreateWorktree(ctx context.Context, taskID, baseBranch string) (models.WorktreeHandle, error) {
	if err := m.fileLock.Lock(); err != nil {
		return models.WorktreeHandle{}, fmt.Errorf("lock worktree registry: %w", err)
	}
	defer m.fileLock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byTask[taskID]; exists {
		return models.WorktreeHandle{}, fmt.Errorf("worktree already exists for task %q", taskID)
	}

	branch := branchName(taskID)
	path := filepath.Join(m.RootDir, sanitize(taskID)+"-"+uuid.NewString()[:8])

	if err := m.vcs.WorktreeAdd(ctx, m.RepoDir, path, branch, baseBranch); err != nil {
		return models.WorktreeHandle{}, fmt.Errorf("materialize worktree for task %q: %w", taskID, err)
	}
	if err := m.vcs.EnsureIdentity(ctx, path); err != nil {
		return models.WorktreeHandle{}, fmt.Errorf("configure identity for task %q: %w", taskID, err)
	}

	handle := models.WorktreeHandle{TaskID: taskID, Path: path, Branch: branch}
	m.byTask[taskID] = handle
	return handle, nil
}

// RemoveWorktree tears down the worktree for taskID. Fatal if the task is
// not known, per spec.md §4.3.
func (m *Manager) RemoveWorktree(ctx context.Context, taskID string) error {
	if err := m.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock worktree registry: %w", err)
	}
	defer m.fileLock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	handle, exists := m.byTask[taskID]
	if !exists {
		return fmt.Errorf("no worktree known for task %q", taskID)
	}

	if err := m.vcs.WorktreeRemove(ctx, m.RepoDir, handle.Path); err != nil {
		return fmt.Errorf("remove worktree for task %q: %w", taskID, err)
	}
	if err := m.vcs.DeleteBranch(ctx, m.RepoDir, handle.Branch); err != nil {
		return fmt.Errorf("delete branch %q for task %q: %w", handle.Branch, taskID, err)
	}
	delete(m.byTask, taskID)
	return nil
}

// ListWorktrees returns every currently tracked worktree.
func (m *Manager) ListWorktrees() []models.WorktreeHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.WorktreeHandle, 0, len(m.byTask))
	for _, h := range m.byTask {
		out = append(out, h)
	}
	return out
}

// Get returns the worktree handle for taskID, if any.
func (m *Manager) Get(taskID string) (models.WorktreeHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byTask[taskID]
	return h, ok
}

func branchName(taskID string) string {
	return "nexus/task-" + sanitize(taskID)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
