package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/qa"
)

const reviewerSystemPromptBody = `You are the code review agent in an autonomous build pipeline. You never
write files; you only produce a structured verdict on a diff.

Flag anything that would make the change unsafe or incorrect to merge:
logic bugs, missed edge cases, security issues, broken invariants. Do not
nitpick style unless it obscures correctness. Rate every issue you raise
with a severity of "critical", "major", "minor", or "suggestion".

Your verdict goes in the envelope's "output" field as a JSON-encoded
string with this shape:
{"approved":true,"issues":[{"severity":"major","file":"...","message":"..."}]}
Set "status" to "success" once the verdict is final; never "continue".`

// reviewPayload is the JSON shape the reviewer model replies with. It's
// distinct from AgentResponse because a review verdict has its own
// fields (approved/issues) rather than status/summary/output.
type reviewPayload struct {
	Approved bool `json:"approved"`
	Issues   []struct {
		Severity string `json:"severity"`
		File     string `json:"file"`
		Message  string `json:"message"`
	} `json:"issues"`
}

// Reviewer produces a structured review for a diff. It implements
// qa.ReviewAgent, so the QA loop engine can drive it without importing
// this package.
type Reviewer struct {
	Loop *BoundedLoop
}

// Review sends diff and changedFiles to the reviewer role and parses its
// structured verdict. The normative blocking rule is applied by
// qa.ReviewRunner, not here; this type only reports what the model said.
func (r *Reviewer) Review(ctx context.Context, diff string, changedFiles []string) (qa.ReviewVerdict, error) {
	prompt := xmlSection("diff", diff) + "\n\n" + xmlList("changed_files", changedFiles)

	result, err := r.Loop.Run(ctx, models.RoleReviewer, withPreamble(reviewerSystemPromptBody), prompt)
	if err != nil {
		return qa.ReviewVerdict{}, err
	}

	payload, perr := parseReviewPayload(result.Response.Output)
	if perr != nil {
		// Fall back to the status-level response if the model put the
		// verdict in "output" as prose instead of the issues schema.
		payload, perr = parseReviewPayload(result.Response.Summary)
		if perr != nil {
			return qa.ReviewVerdict{}, fmt.Errorf("parse review verdict: %w", perr)
		}
	}

	verdict := qa.ReviewVerdict{Approved: payload.Approved}
	for _, issue := range payload.Issues {
		verdict.Issues = append(verdict.Issues, models.ReviewIssue{
			Severity: models.Severity(issue.Severity),
			File:     issue.File,
			Message:  issue.Message,
		})
	}
	return verdict, nil
}

func parseReviewPayload(text string) (reviewPayload, error) {
	var payload reviewPayload
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end <= start {
		return payload, fmt.Errorf("no JSON object found")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
