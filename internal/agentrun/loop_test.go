package agentrun

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/models"
)

type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, agentType models.AgentRole, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	if p.calls >= len(p.replies) {
		return llm.Response{}, errors.New("no more scripted replies")
	}
	reply := p.replies[p.calls]
	p.calls++
	return llm.Response{Content: reply, FinishReason: llm.FinishStop, Usage: models.TokenUsage{PromptTokens: 1, CompletionTokens: 1}}, nil
}

func (p *scriptedProvider) CountTokens(text string) int { return len(text) / 4 }

func newTestLoop(replies []string) *BoundedLoop {
	provider := &scriptedProvider{replies: replies}
	client := llm.NewClient(provider, llm.ClientOptions{}, nil)
	return &BoundedLoop{Client: client, MaxIterations: 5}
}

func TestBoundedLoopReturnsTerminalResponse(t *testing.T) {
	loop := newTestLoop([]string{`{"status":"success","summary":"done","output":"ok"}`})
	result, err := loop.Run(context.Background(), models.RoleCoder, "sys", "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Response.Status)
	assert.Equal(t, 1, result.Iterations)
}

func TestBoundedLoopRecoversFromMalformedResponse(t *testing.T) {
	loop := newTestLoop([]string{
		"sure, here's some prose with no json",
		`{"status":"success","summary":"done","output":"ok"}`,
	})
	result, err := loop.Run(context.Background(), models.RoleCoder, "sys", "do the thing")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
}

func TestBoundedLoopEscalatesAtCeiling(t *testing.T) {
	loop := newTestLoop([]string{
		`{"status":"continue","summary":"still going"}`,
		`{"status":"continue","summary":"still going"}`,
	})
	loop.MaxIterations = 2
	_, err := loop.Run(context.Background(), models.RoleCoder, "sys", "do the thing")
	require.Error(t, err)
}

func TestBoundedLoopHonorsCancellation(t *testing.T) {
	loop := newTestLoop([]string{`{"status":"success"}`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.Run(ctx, models.RoleCoder, "sys", "do the thing")
	require.Error(t, err)
}
