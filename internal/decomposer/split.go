package decomposer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/nexus-build/nexus/internal/models"
)

var splitParser = goldmark.New()

// taskStep is one candidate sub-unit a task can be divided along.
type taskStep struct {
	description string
	files       []string
}

// splitTask subdivides task if its estimate exceeds budgetMinutes, along
// declared sub-steps (a markdown bullet list in its description) or,
// failing that, along its declared file groups. The group count is
// ceil(estimate/budget), so when enough sub-steps exist to fill every
// group, every piece's share is within budget by construction. Pieces
// chain by depends_on in order, so a downstream consumer of the original
// task now effectively waits on its last piece.
func splitTask(task models.Task, budgetMinutes int) []models.Task {
	if budgetMinutes <= 0 || task.EstimatedMinutes <= budgetMinutes {
		return []models.Task{task}
	}

	groups := ceilDiv(task.EstimatedMinutes, budgetMinutes)
	if groups < 2 {
		groups = 2
	}

	steps := chunkSteps(extractBulletSteps(task.Description), groups)
	if len(steps) < 2 {
		steps = chunkSteps(groupFilesSteps(task.Files), groups)
	}
	if len(steps) < 2 {
		// Nothing in the task gives us a seam to split along; report it
		// whole and let the replanner's time-exceeded trigger catch an
		// estimate that turns out to be wrong in practice.
		return []models.Task{task}
	}

	perStep := task.EstimatedMinutes / len(steps)
	if perStep < 1 {
		perStep = 1
	}

	out := make([]models.Task, 0, len(steps))
	var prevID string
	for i, step := range steps {
		sub := task
		sub.ID = fmt.Sprintf("%s-%d", task.ID, i+1)
		sub.Title = fmt.Sprintf("%s (%d/%d)", task.Title, i+1, len(steps))
		sub.Description = step.description
		sub.Files = step.files
		sub.EstimatedMinutes = perStep
		if i == 0 {
			sub.DependsOn = append([]string{}, task.DependsOn...)
		} else {
			sub.DependsOn = []string{prevID}
		}
		out = append(out, sub)
		prevID = sub.ID
	}
	return out
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 1
	}
	return (a + b - 1) / b
}

// chunkSteps reduces raw to exactly `groups` steps when there are more
// than needed, merging round-robin; returns raw unchanged when there are
// already few enough, and nil when there's nothing to split.
func chunkSteps(raw []taskStep, groups int) []taskStep {
	if len(raw) < 2 {
		return nil
	}
	if len(raw) <= groups {
		return raw
	}

	buckets := make([]taskStep, groups)
	for i, r := range raw {
		idx := i % groups
		if buckets[idx].description != "" {
			buckets[idx].description += "; " + r.description
		} else {
			buckets[idx].description = r.description
		}
		buckets[idx].files = append(buckets[idx].files, r.files...)
	}

	result := buckets[:0]
	for _, b := range buckets {
		if b.description != "" {
			result = append(result, b)
		}
	}
	return result
}

func groupFilesSteps(files []string) []taskStep {
	if len(files) < 2 {
		return nil
	}
	steps := make([]taskStep, len(files))
	for i, f := range files {
		steps[i] = taskStep{
			description: fmt.Sprintf("Covers file: %s", f),
			files:       []string{f},
		}
	}
	return steps
}

// extractBulletSteps walks a task description's markdown AST and returns
// one taskStep per top-level bullet list item, in document order.
func extractBulletSteps(description string) []taskStep {
	source := []byte(description)
	doc := splitParser.Parser().Parse(text.NewReader(source))

	var steps []taskStep
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		content := plainText(item, source)
		if content != "" {
			steps = append(steps, taskStep{description: content})
		}
		return ast.WalkSkipChildren, nil
	})
	return steps
}

func plainText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
