package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexus-build/nexus/internal/models"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "claude-sonnet-4-5-20250929"

// AnthropicProvider calls the Anthropic Messages API directly over HTTPS.
// Use this binding when the orchestration host carries an API key; it
// avoids the per-call process-spawn cost of ExecProvider and surfaces the
// SDK's own structured error types instead of scraping CLI stderr.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider builds a provider from an API key. An empty key
// lets the SDK fall back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: DefaultModel}
}

func (p *AnthropicProvider) Name() string { return "anthropic-api" }

func (p *AnthropicProvider) Chat(ctx context.Context, agentType models.AgentRole, messages []Message, opts Options) (Response, error) {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var system string
	var sdkMessages []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content
		case RoleAssistant:
			sdkMessages = append(sdkMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			sdkMessages = append(sdkMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  sdkMessages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyAnthropicError(err)
	}

	var content string
	for _, block := range msg.Content {
		if text := block.AsText(); text.Text != "" {
			content += text.Text
		}
	}
	if content == "" {
		return Response{}, &Error{Kind: ErrMalformed, Err: fmt.Errorf("anthropic response contained no text content")}
	}

	return Response{
		Content: content,
		Usage: models.TokenUsage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
		},
		FinishReason: mapStopReason(string(msg.StopReason)),
	}, nil
}

func mapStopReason(reason string) FinishReason {
	switch reason {
	case "max_tokens":
		return FinishMaxTokens
	case "tool_use":
		return FinishToolUse
	default:
		return FinishStop
	}
}

func (p *AnthropicProvider) CountTokens(text string) int {
	return approxTokenCount(text)
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &Error{Kind: ErrAuthFailure, Err: err}
		case 429:
			return &Error{Kind: ErrRateLimited, RetryAfter: retryAfterFromHeader(apiErr), Err: err}
		case 402:
			return &Error{Kind: ErrQuotaExhausted, Err: err}
		default:
			if apiErr.StatusCode >= 500 {
				return &Error{Kind: ErrTransient, Err: err}
			}
		}
	}
	return &Error{Kind: ErrTransient, Err: err}
}

func retryAfterFromHeader(apiErr *anthropic.Error) float64 {
	if apiErr == nil || apiErr.Response == nil {
		return 0
	}
	h := apiErr.Response.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	var seconds float64
	_, scanErr := fmt.Sscanf(h, "%f", &seconds)
	if scanErr != nil {
		return 0
	}
	return seconds
}
