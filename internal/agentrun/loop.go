package agentrun

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/models"
)

// DefaultMaxIterations bounds the conversation loop when a role config
// doesn't set its own. DefaultTimeout bounds its wall clock.
const (
	DefaultMaxIterations = 15
	DefaultTimeout       = 10 * time.Minute
)

// LoopResult is the raw outcome of a bounded conversation, before a role
// wrapper turns it into a CoderResult/TesterResult/etc.
type LoopResult struct {
	Response   AgentResponse
	Iterations int
	Usage      models.TokenUsage
}

// BoundedLoop drives a single role through a conversation with the LLM
// client, bounded by max iterations, a wall-clock timeout, and
// cancellation (spec.md §4.7). Every iteration submits the full message
// history and expects a structured AgentResponse back; a malformed
// response costs an iteration and gets a corrective follow-up message
// rather than failing the whole run, since providers occasionally wrap
// JSON in prose despite instructions.
type BoundedLoop struct {
	Client        *llm.Client
	MaxIterations int
	Timeout       time.Duration
}

func (l *BoundedLoop) maxIterations() int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return DefaultMaxIterations
}

func (l *BoundedLoop) timeout() time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return DefaultTimeout
}

// Run executes the bounded loop for role, seeded with systemPrompt and
// userPrompt, returning the first terminal ("success" or "error")
// response it receives, or an error if the ceiling is hit first or the
// context is cancelled.
func (l *BoundedLoop) Run(ctx context.Context, role models.AgentRole, systemPrompt, userPrompt string) (LoopResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt + "\n\n" + responseFormatInstruction},
	}

	var total models.TokenUsage
	for iteration := 1; iteration <= l.maxIterations(); iteration++ {
		if runCtx.Err() != nil {
			return LoopResult{Iterations: iteration - 1, Usage: total}, fmt.Errorf("agent loop cancelled: %w", runCtx.Err())
		}

		resp, err := l.Client.Chat(runCtx, role, messages, llm.Options{})
		if err != nil {
			return LoopResult{Iterations: iteration, Usage: total}, fmt.Errorf("llm chat: %w", err)
		}
		total.Add(resp.Usage)
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		parsed, parseErr := parseAgentResponse(resp.Content)
		if parseErr != nil {
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: "Your last reply was not valid JSON matching the required schema. Reply again with ONLY the JSON object.",
			})
			continue
		}

		if parsed.Status == "continue" {
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "Continue."})
			continue
		}

		return LoopResult{Response: parsed, Iterations: iteration, Usage: total}, nil
	}

	return LoopResult{Iterations: l.maxIterations(), Usage: total}, fmt.Errorf("agent loop exceeded %d iterations without a terminal response", l.maxIterations())
}
