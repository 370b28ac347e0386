package decomposer

import (
	"fmt"
	"strings"

	"github.com/nexus-build/nexus/internal/models"
)

const systemPrompt = `You are the planning agent in an autonomous build pipeline. Given a
feature description, produce a JSON array of candidate tasks, each a
focused, independently mergeable unit of work.

Respond with ONLY a JSON array, no surrounding prose, where each element
has this shape:
{"title": "...", "description": "...", "files": ["..."], "estimated_minutes": N, "depends_on": ["<title of a prerequisite task>"], "priority": "must|should|could|wont"}

depends_on entries must reference another task's "title" field exactly.
Omit it for tasks with no prerequisite.`

func buildPrompt(feature models.Feature, budgetMinutes int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Feature: %s\n\n%s\n", feature.Title, feature.Description)
	if len(feature.AcceptanceCriteria) > 0 {
		sb.WriteString("\nAcceptance criteria:\n")
		for _, c := range feature.AcceptanceCriteria {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	fmt.Fprintf(&sb, "\nEach task's estimated_minutes must be %d or less. If a natural unit of work would exceed that, split it into multiple tasks chained by depends_on instead of proposing one oversized task.\n", budgetMinutes)
	return sb.String()
}
