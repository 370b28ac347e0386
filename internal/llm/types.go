// Package llm provides a uniform chat interface over external LLM
// providers, with retry, rate-limit backoff, circuit breaking, and
// per-agent-type token accounting. Prompt composition is the caller's
// responsibility; this package only transports messages.
package llm

import (
	"context"
	"fmt"

	"github.com/nexus-build/nexus/internal/models"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat conversation.
type Message struct {
	Role    Role
	Content string
}

// Options configures a single chat call.
type Options struct {
	MaxTokens   int
	Temperature float64
	// Model overrides the provider's default model for this call.
	Model string
}

// FinishReason describes why a provider stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishToolUse   FinishReason = "tool_use"
)

// Response is a provider's answer to a chat call.
type Response struct {
	Content      string
	Usage        models.TokenUsage
	FinishReason FinishReason
}

// ErrorKind classifies failures per spec: Transient and RateLimited are
// retriable, AuthFailure is fatal, QuotaExhausted escalates to a human,
// Malformed means the provider's own output couldn't be parsed.
type ErrorKind string

const (
	ErrTransient      ErrorKind = "transient"
	ErrRateLimited    ErrorKind = "rate_limited"
	ErrAuthFailure    ErrorKind = "auth_failure"
	ErrQuotaExhausted ErrorKind = "quota_exhausted"
	ErrMalformed      ErrorKind = "malformed"
)

// Error wraps a provider failure with its taxonomy kind and, for
// RateLimited errors, an optional server-provided retry delay.
type Error struct {
	Kind       ErrorKind
	RetryAfter float64 // seconds; zero means "no hint, use backoff default"
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether the caller should retry after backoff.
func (e *Error) Retriable() bool {
	return e.Kind == ErrTransient || e.Kind == ErrRateLimited
}

// Provider is a single LLM backend binding (CLI-exec, SDK, etc).
type Provider interface {
	Name() string
	Chat(ctx context.Context, agentType models.AgentRole, messages []Message, opts Options) (Response, error)
	CountTokens(text string) int
}
