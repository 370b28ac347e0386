package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/runner"
)

// DefaultSystemPrompt is appended ahead of the caller's own messages when
// the caller hasn't supplied a system message of its own.
const DefaultSystemPrompt = "You are a software engineering agent. Respond only with the content requested by the task; do not add prose commentary outside of what is asked for."

// ExecProvider drives the Claude CLI binary as a subprocess. It is the
// zero-dependency provider binding: anywhere the anthropic-sdk-go
// provider can't be used (no API key, air-gapped runner, CLI-only
// license), this one still works because it shells out to a binary the
// operator already has configured.
type ExecProvider struct {
	BinaryPath string
	Runner     *runner.Runner
	Timeout    time.Duration
}

// NewExecProvider constructs an ExecProvider using the "claude" binary
// found on PATH.
func NewExecProvider(r *runner.Runner) *ExecProvider {
	return &ExecProvider{
		BinaryPath: "claude",
		Runner:     r,
		Timeout:    5 * time.Minute,
	}
}

func (p *ExecProvider) Name() string { return "claude-cli" }

type execResponseEnvelope struct {
	Content          string          `json:"content"`
	Result           string          `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	Usage            *execUsage      `json:"usage"`
	StopReason       string          `json:"stop_reason"`
	IsError          bool            `json:"is_error"`
	ErrorType        string          `json:"error_type"`
}

type execUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Chat invokes the CLI binary once per call: no session reuse, since each
// call may run in a different agent's worktree and must not leak context
// across tasks.
func (p *ExecProvider) Chat(ctx context.Context, agentType models.AgentRole, messages []Message, opts Options) (Response, error) {
	systemPrompt, prompt := flattenMessages(messages)

	args := []string{
		"--system-prompt", systemPrompt,
		"-p", prompt,
		"--output-format", "json",
		"--permission-mode", "bypassPermissions",
		"--settings", `{"disableAllHooks": true}`,
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.BinaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() != nil {
			return Response{}, &Error{Kind: ErrTransient, Err: fmt.Errorf("claude cli timed out: %w", err)}
		}
		return Response{}, classifyExecError(string(output), err)
	}

	var env execResponseEnvelope
	content := string(output)
	if jsonErr := json.Unmarshal(output, &env); jsonErr == nil {
		if env.IsError {
			return Response{}, classifyExecEnvelopeError(env)
		}
		content = extractContent(env)
	}

	resp := Response{
		Content:      strings.TrimSpace(content),
		FinishReason: FinishStop,
	}
	if env.Usage != nil {
		resp.Usage = models.TokenUsage{PromptTokens: env.Usage.InputTokens, CompletionTokens: env.Usage.OutputTokens}
	}
	if resp.Content == "" {
		return Response{}, &Error{Kind: ErrMalformed, Err: fmt.Errorf("empty content in claude cli response")}
	}
	return resp, nil
}

func extractContent(env execResponseEnvelope) string {
	if len(env.StructuredOutput) > 0 && string(env.StructuredOutput) != "null" {
		return string(env.StructuredOutput)
	}
	if env.Result != "" {
		return env.Result
	}
	return env.Content
}

func flattenMessages(messages []Message) (systemPrompt, prompt string) {
	systemPrompt = DefaultSystemPrompt
	var turns []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemPrompt = m.Content
		case RoleAssistant:
			turns = append(turns, "Assistant: "+m.Content)
		default:
			turns = append(turns, m.Content)
		}
	}
	return systemPrompt, strings.Join(turns, "\n\n")
}

// CountTokens approximates token count at roughly four characters per
// token. No library in the dependency pack implements a Claude-compatible
// tokenizer, and the exec provider has no way to ask the CLI for an exact
// count outside of a real invocation, so this heuristic is used for
// pre-flight budgeting only, never for billing-accurate totals.
func (p *ExecProvider) CountTokens(text string) int {
	return approxTokenCount(text)
}

func approxTokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func classifyExecError(output string, err error) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication"):
		return &Error{Kind: ErrAuthFailure, Err: fmt.Errorf("%s: %w", strings.TrimSpace(output), err)}
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return &Error{Kind: ErrRateLimited, RetryAfter: parseRetryAfterHint(lower), Err: fmt.Errorf("%s: %w", strings.TrimSpace(output), err)}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "usage limit reached"):
		return &Error{Kind: ErrQuotaExhausted, Err: fmt.Errorf("%s: %w", strings.TrimSpace(output), err)}
	default:
		return &Error{Kind: ErrTransient, Err: fmt.Errorf("%s: %w", strings.TrimSpace(output), err)}
	}
}

func classifyExecEnvelopeError(env execResponseEnvelope) error {
	lower := strings.ToLower(env.ErrorType)
	switch {
	case strings.Contains(lower, "auth"):
		return &Error{Kind: ErrAuthFailure, Err: fmt.Errorf("%s", env.Content)}
	case strings.Contains(lower, "rate") || strings.Contains(lower, "overloaded"):
		return &Error{Kind: ErrRateLimited, Err: fmt.Errorf("%s", env.Content)}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "usage"):
		return &Error{Kind: ErrQuotaExhausted, Err: fmt.Errorf("%s", env.Content)}
	default:
		return &Error{Kind: ErrTransient, Err: fmt.Errorf("%s", env.Content)}
	}
}

func parseRetryAfterHint(lower string) float64 {
	idx := strings.Index(lower, "retry in ")
	if idx < 0 {
		idx = strings.Index(lower, "retry after ")
	}
	if idx < 0 {
		return 0
	}
	rest := lower[idx:]
	fields := strings.Fields(rest)
	for _, f := range fields {
		f = strings.TrimRight(f, "s,.")
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			return v
		}
	}
	return 0
}
