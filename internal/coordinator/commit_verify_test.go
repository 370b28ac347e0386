package coordinator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/runner"
	"github.com/nexus-build/nexus/internal/vcs"
)

func gitCommit(t *testing.T, dir, file, content, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	for _, args := range [][]string{{"add", "-A"}, {"commit", "-q", "-m", message}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
}

func TestCommitVerifierPassesWhenOnlyDeclaredFilesChanged(t *testing.T) {
	dir := initRepo(t)
	gitCommit(t, dir, "a.go", "package a\n", "add a.go")

	v := &CommitVerifier{VCS: vcs.NewAdapter(runner.New())}
	result, err := v.Verify(context.Background(), models.Task{Files: []string{"a.go"}}, dir, "HEAD~1")
	require.NoError(t, err)
	assert.True(t, result.Verified)
}

func TestCommitVerifierFlagsUndeclaredFiles(t *testing.T) {
	dir := initRepo(t)
	gitCommit(t, dir, "b.go", "package b\n", "add b.go")

	v := &CommitVerifier{VCS: vcs.NewAdapter(runner.New())}
	result, err := v.Verify(context.Background(), models.Task{Files: []string{"a.go"}}, dir, "HEAD~1")
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Contains(t, result.UnexpectedFiles, "b.go")
}

func TestCommitVerifierTreatsExpectedSubsetAsVerified(t *testing.T) {
	dir := initRepo(t)
	gitCommit(t, dir, "a.go", "package a\n", "add a.go")

	v := &CommitVerifier{VCS: vcs.NewAdapter(runner.New())}
	result, err := v.Verify(context.Background(), models.Task{Files: []string{"a.go", "b.go"}}, dir, "HEAD~1")
	require.NoError(t, err)
	assert.True(t, result.Verified)
}

func TestCommitVerifierTolerance(t *testing.T) {
	dir := initRepo(t)
	gitCommit(t, dir, "extra.go", "package extra\n", "add extra.go")

	v := &CommitVerifier{VCS: vcs.NewAdapter(runner.New()), MaxUnexpectedFiles: 1}
	result, err := v.Verify(context.Background(), models.Task{Files: []string{"a.go"}}, dir, "HEAD~1")
	require.NoError(t, err)
	assert.True(t, result.Verified)
}
