package models

// AgentRole identifies one of the four role-specialized agent runners, or
// one of the planning-time LLM consumers (decomposer) that share the LLM
// Client's retry/breaker/usage-accounting machinery without running a
// bounded conversation loop.
type AgentRole string

const (
	RoleCoder      AgentRole = "coder"
	RoleTester     AgentRole = "tester"
	RoleReviewer   AgentRole = "reviewer"
	RoleMerger     AgentRole = "merger"
	RoleDecomposer AgentRole = "decomposer"
)

// AgentLoopState is the state of an agent's bounded conversation loop.
type AgentLoopState string

const (
	LoopIdle         AgentLoopState = "idle"
	LoopWorking      AgentLoopState = "working"
	LoopAwaitingTool AgentLoopState = "awaiting-tool"
	LoopDone         AgentLoopState = "done"
	LoopError        AgentLoopState = "error"
)

// TokenUsage accumulates LLM token counts for one agent instance or agent
// type.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Total returns the sum of prompt and completion tokens.
func (u TokenUsage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// AgentInstance is a short-lived entity representing one agent working on
// one task; its lifetime spans exactly one execute(task) call.
type AgentInstance struct {
	ID         string
	Role       AgentRole
	TaskID     string
	WorktreeID string
	State      AgentLoopState
	Usage      TokenUsage
}
