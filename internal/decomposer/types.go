package decomposer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// candidateTask is the shape the planning LLM is asked to emit. Fields are
// loose (strings, not models.Priority) because the model's output is
// untrusted until candidatesToTasks normalizes it.
type candidateTask struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Files            []string `json:"files"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	DependsOn        []string `json:"depends_on"`
	Priority         string   `json:"priority"`
}

// parseCandidates extracts a JSON array of candidate tasks from the
// model's reply, tolerating prose wrapped around the array the same way
// the agent runners tolerate prose around their response envelope.
func parseCandidates(output string) ([]candidateTask, error) {
	start := strings.IndexByte(output, '[')
	end := strings.LastIndexByte(output, ']')
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("decomposer: no JSON array found in output")
	}

	var candidates []candidateTask
	if err := json.Unmarshal([]byte(output[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("decomposer: parse candidate tasks: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("decomposer: empty candidate task list")
	}
	for i, c := range candidates {
		if c.Title == "" || c.Description == "" {
			return nil, fmt.Errorf("decomposer: candidate task %d missing title or description", i)
		}
	}
	return candidates, nil
}
