// Package planner asks an external model for the next edit toward a goal.
//
// The planner is a hard dependency of the loop: when no provider is
// configured the loop cannot make progress and must abort, unlike the
// embedding capability which degrades gracefully.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/selfedit/internal/config"
	"github.com/rcliao/selfedit/internal/model"
)

// ErrNotConfigured is returned when no planner provider is configured.
var ErrNotConfigured = errors.New("planner not configured")

// Request carries everything the planner sees for one proposal.
type Request struct {
	Goal       string
	Transcript []model.Message // recent log entries, oldest first
	Snippets   []string        // optional similarity-recalled context
}

// Proposal is the planner's answer: a candidate single-file edit, a
// goal-satisfied signal, or both (a final edit).
type Proposal struct {
	Done      bool   `json:"done"`
	Path      string `json:"path,omitempty"`
	Updated   string `json:"updated,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// HasEdit reports whether the proposal carries a candidate edit.
func (p *Proposal) HasEdit() bool { return p.Path != "" }

// Planner proposes the next action toward a goal.
type Planner interface {
	Propose(ctx context.Context, req Request) (*Proposal, error)
}

// NewFromConfig builds a planner from config. Returns ErrNotConfigured
// when no provider is selected.
func NewFromConfig(cfg config.PlannerConfig) (Planner, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIPlanner(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "gemini":
		return NewGeminiPlanner(cfg.APIKey, cfg.Model)
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.Provider)
	}
}

const systemPrompt = `You are the planning component of a self-editing software agent.
Given a goal and the run transcript, respond with a single JSON object and nothing else:
{
  "done": <true when the goal is already satisfied>,
  "path": "<file to rewrite, relative to the working tree; omit when done>",
  "updated": "<the complete new content of that file>",
  "rationale": "<one or two sentences on why>"
}
Propose exactly one file edit per response. Prefer the smallest change that
moves toward the goal; your edit will be tested and reverted if tests fail.`

// buildPrompt renders a request into the user prompt sent to the model.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(req.Goal)
	b.WriteString("\n")

	if len(req.Snippets) > 0 {
		b.WriteString("\nRelevant context from memory:\n")
		for _, s := range req.Snippets {
			b.WriteString("---\n")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	if len(req.Transcript) > 0 {
		b.WriteString("\nRun transcript:\n")
		for _, m := range req.Transcript {
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// decodeProposal parses a model response into a proposal, tolerating a
// markdown code fence around the JSON.
func decodeProposal(text string) (*Proposal, error) {
	text = strings.TrimSpace(text)
	text = stripFence(text)

	var p Proposal
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("planner returned invalid JSON: %w", err)
	}
	if !p.Done && p.Path == "" {
		// An idle response proposing nothing counts as a goal-satisfied
		// signal; there is no further edit to make.
		p.Done = true
	}
	return &p, nil
}

// stripFence removes a surrounding ```json ... ``` fence if present.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
