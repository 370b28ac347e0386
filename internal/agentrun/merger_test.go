package agentrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/runner"
	"github.com/nexus-build/nexus/internal/vcs"
)

func TestMergerMergesCleanly(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt-clean")
	require.NoError(t, adapter.WorktreeAdd(ctx, dir, wtPath, "feature/clean", ""))
	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "new.txt"), []byte("hi\n"), 0o644))
	require.NoError(t, adapter.AddAll(ctx, wtPath))
	_, err := adapter.Commit(ctx, wtPath, "add new.txt")
	require.NoError(t, err)

	merger := &Merger{VCS: adapter}
	commit, review, err := merger.Merge(ctx, dir, models.WorktreeHandle{TaskID: "t1", Path: wtPath, Branch: "feature/clean"})
	require.NoError(t, err)
	assert.Nil(t, review)
	assert.NotEmpty(t, commit)
}

func TestMergerEscalatesUnresolvedConflict(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt-conflict")
	require.NoError(t, adapter.WorktreeAdd(ctx, dir, wtPath, "feature/conflict", ""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("main change\n"), 0o644))
	require.NoError(t, adapter.AddAll(ctx, dir))
	_, err := adapter.Commit(ctx, dir, "main change")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "README.md"), []byte("conflicting change\n"), 0o644))
	require.NoError(t, adapter.AddAll(ctx, wtPath))
	_, err = adapter.Commit(ctx, wtPath, "conflicting change")
	require.NoError(t, err)

	merger := &Merger{VCS: adapter} // no Loop: resolution disabled
	commit, review, err := merger.Merge(ctx, dir, models.WorktreeHandle{TaskID: "t1", Path: wtPath, Branch: "feature/conflict"})
	require.NoError(t, err)
	assert.Empty(t, commit)
	require.NotNil(t, review)
	assert.Equal(t, models.ReasonMergeConflict, review.Reason)
	assert.Contains(t, review.Context.ConflictFiles, "README.md")
}

func TestMergerResolvesConflictViaAgent(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt-resolve")
	require.NoError(t, adapter.WorktreeAdd(ctx, dir, wtPath, "feature/resolve", ""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("main change\n"), 0o644))
	require.NoError(t, adapter.AddAll(ctx, dir))
	_, err := adapter.Commit(ctx, dir, "main change")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "README.md"), []byte("conflicting change\n"), 0o644))
	require.NoError(t, adapter.AddAll(ctx, wtPath))
	_, err = adapter.Commit(ctx, wtPath, "conflicting change")
	require.NoError(t, err)

	// fileWritingProvider fakes the real binding's CLI tool use: resolving
	// the conflict marker is a side effect of the agent's turn, not
	// something this Go code does on its behalf.
	provider := &fileWritingProvider{
		path:    filepath.Join(dir, "README.md"),
		content: "resolved change\n",
		reply:   `{"status":"success","summary":"resolved"}`,
	}
	client := llm.NewClient(provider, llm.ClientOptions{}, nil)
	merger := &Merger{VCS: adapter, Loop: &BoundedLoop{Client: client}}

	commit, review, err := merger.Merge(ctx, dir, models.WorktreeHandle{TaskID: "t1", Path: wtPath, Branch: "feature/resolve"})
	require.NoError(t, err)
	assert.Nil(t, review)
	assert.NotEmpty(t, commit)
}

type fileWritingProvider struct {
	path, content, reply string
}

func (p *fileWritingProvider) Name() string { return "file-writing" }

func (p *fileWritingProvider) Chat(ctx context.Context, agentType models.AgentRole, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	if err := os.WriteFile(p.path, []byte(p.content), 0o644); err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Content: p.reply, FinishReason: llm.FinishStop}, nil
}

func (p *fileWritingProvider) CountTokens(text string) int { return len(text) / 4 }
