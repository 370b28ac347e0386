package coordinator

import (
	"context"
	"fmt"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/vcs"
)

// CommitVerification is the result of checking a completed task's commit
// against its declared file set.
type CommitVerification struct {
	Verified        bool
	UnexpectedFiles []string
	Mismatch        string
}

// CommitVerifier checks that a task's merged commit stayed within the
// files it declared, rather than trusting a clean merge at face value. A
// commit that touches only some of the declared files still verifies.
// It only ever reads git state; it never amends or reverts a commit.
type CommitVerifier struct {
	VCS *vcs.Adapter

	// MaxUnexpectedFiles is how many files outside the task's declared
	// set are tolerated before the commit is flagged for review. Zero
	// means any unexpected file fails verification.
	MaxUnexpectedFiles int
}

// Verify compares the files actually changed in worktreePath against
// baseBranch with task.Files.
func (v *CommitVerifier) Verify(ctx context.Context, task models.Task, worktreePath, baseBranch string) (CommitVerification, error) {
	changed, err := v.VCS.ChangedFiles(ctx, worktreePath, baseBranch)
	if err != nil {
		return CommitVerification{}, fmt.Errorf("commit verify: %w", err)
	}

	expected := make(map[string]bool, len(task.Files))
	for _, f := range task.Files {
		expected[f] = true
	}

	var unexpected []string
	for _, f := range changed {
		if !expected[f] {
			unexpected = append(unexpected, f)
		}
	}

	if len(unexpected) > v.MaxUnexpectedFiles {
		return CommitVerification{
			Verified:        false,
			UnexpectedFiles: unexpected,
			Mismatch:        fmt.Sprintf("commit touched %d file(s) outside the declared set", len(unexpected)),
		}, nil
	}

	return CommitVerification{Verified: true}, nil
}
