package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/nexus-build/nexus/internal/models"
)

// ClientOptions configures retry and circuit-breaking policy.
type ClientOptions struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailureThreshold is the consecutive-failure count that trips
	// the circuit, pausing calls to a provider that is clearly down.
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.InitialInterval == 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval == 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.BreakerFailureThreshold == 0 {
		o.BreakerFailureThreshold = 5
	}
	if o.BreakerOpenTimeout == 0 {
		o.BreakerOpenTimeout = 30 * time.Second
	}
	return o
}

// Client wraps a Provider with exponential backoff retry, a circuit
// breaker for sustained outages, and usage accounting broken down by
// agent type (spec: "usage statistics are accumulated per agent type").
type Client struct {
	provider Provider
	opts     ClientOptions
	breaker  *gobreaker.CircuitBreaker
	usage    *UsageAccumulator
}

// NewClient wraps provider with the given policy. A nil usage accumulator
// creates a fresh one.
func NewClient(provider Provider, opts ClientOptions, usage *UsageAccumulator) *Client {
	opts = opts.withDefaults()
	if usage == nil {
		usage = NewUsageAccumulator()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + provider.Name(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailureThreshold
		},
	})
	return &Client{provider: provider, opts: opts, breaker: cb, usage: usage}
}

// Chat sends messages to the provider, retrying transient and
// rate-limited failures with exponential backoff (honoring any
// Retry-After hint) up to MaxRetries. AuthFailure and QuotaExhausted
// errors are not retried; they're returned immediately so the caller can
// escalate.
func (c *Client) Chat(ctx context.Context, agentType models.AgentRole, messages []Message, opts Options) (Response, error) {
	var resp Response

	operation := func() error {
		raw, err := c.breaker.Execute(func() (interface{}, error) {
			return c.provider.Chat(ctx, agentType, messages, opts)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return &Error{Kind: ErrTransient, Err: err}
			}
			return err
		}
		resp = raw.(Response)
		return nil
	}

	policy := &retryAfterBackOff{BackOff: c.retryPolicy(ctx)}
	err := backoff.Retry(wrapRetriable(operation, policy), policy)
	if err != nil {
		return Response{}, unwrapFinal(err)
	}

	c.usage.Add(agentType, resp.Usage)
	return resp, nil
}

// CountTokens delegates to the underlying provider.
func (c *Client) CountTokens(text string) int {
	return c.provider.CountTokens(text)
}

// Usage returns the accumulator tracking per-agent-type totals.
func (c *Client) Usage() *UsageAccumulator {
	return c.usage
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialInterval
	exp.MaxInterval = c.opts.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.opts.MaxRetries)), ctx)
}

// wrapRetriable short-circuits backoff for non-retriable error kinds and
// records a provider-reported Retry-After hint on policy so the next
// NextBackOff call honors it instead of the exponential schedule.
func wrapRetriable(operation func() error, policy *retryAfterBackOff) func() error {
	return func() error {
		err := operation()
		if err == nil {
			return nil
		}
		var llmErr *Error
		if errors.As(err, &llmErr) {
			if !llmErr.Retriable() {
				return backoff.Permanent(err)
			}
			if llmErr.Kind == ErrRateLimited && llmErr.RetryAfter > 0 {
				policy.nextOverride = time.Duration(llmErr.RetryAfter * float64(time.Second))
			}
			return err
		}
		return backoff.Permanent(err)
	}
}

// retryAfterBackOff wraps a BackOff and lets the caller override the next
// interval once, used to honor a server's Retry-After header exactly
// instead of guessing at the exponential schedule.
type retryAfterBackOff struct {
	backoff.BackOff
	nextOverride time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.nextOverride > 0 {
		d := b.nextOverride
		b.nextOverride = 0
		return d
	}
	return b.BackOff.NextBackOff()
}

func unwrapFinal(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
