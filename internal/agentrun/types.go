// Package agentrun implements the four role-specialized agent runners
// (coder, tester, reviewer, merger) of spec.md §4.7, each a thin role
// configuration layered over one shared bounded conversation loop.
package agentrun

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexus-build/nexus/internal/models"
)

// AgentResponse is the structured JSON every role is instructed to answer
// with, so the runner never has to scrape prose for an outcome.
type AgentResponse struct {
	Status        string   `json:"status"` // "success" | "error" | "continue"
	Summary       string   `json:"summary"`
	Output        string   `json:"output"`
	Errors        []string `json:"errors"`
	FilesModified []string `json:"files_modified"`
}

// responseFormatInstruction is appended to every role prompt; it is the
// only thing standing between a free-form chat model and a parseable
// response, since tool schemas aren't enforced end-to-end across both LLM
// provider bindings.
const responseFormatInstruction = `<response_format>
Respond with ONLY valid JSON matching this structure, no markdown fences,
no prose outside the object:
{"status":"success|error|continue","summary":"...","output":"...","errors":[],"files_modified":[]}
Use "continue" only if you still have concrete remaining steps to run in a
later turn. Otherwise use "success" or "error".
</response_format>`

// parseAgentResponse takes the text from the first '{' to the last '}' in
// output (tolerating prose or code fences around it) and decodes it as an
// AgentResponse.
func parseAgentResponse(output string) (AgentResponse, error) {
	var resp AgentResponse
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end < 0 || end <= start {
		return resp, fmt.Errorf("no JSON object found in agent output")
	}
	if err := json.Unmarshal([]byte(output[start:end+1]), &resp); err != nil {
		return resp, fmt.Errorf("decode agent response: %w", err)
	}
	if resp.Status == "" {
		return resp, fmt.Errorf("agent response missing status")
	}
	return resp, nil
}

// CoderResult is the Coder's execute() outcome (spec.md §4.7).
type CoderResult struct {
	Success      bool
	FilesChanged []string
	Output       string
	Iterations   int
	TokenUsage   models.TokenUsage
}

// TesterResult is the Tester's outcome: proposed or updated test files.
type TesterResult struct {
	Success      bool
	FilesChanged []string
	Output       string
	Iterations   int
	TokenUsage   models.TokenUsage
}
