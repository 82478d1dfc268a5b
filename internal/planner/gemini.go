package planner

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiPlanner uses Google's Gemini API for planning.
type GeminiPlanner struct {
	client *genai.Client
	model  string
}

// NewGeminiPlanner creates a planner backed by the Gemini API.
func NewGeminiPlanner(apiKey, model string) (*GeminiPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiPlanner{client: client, model: model}, nil
}

func (p *GeminiPlanner) Propose(ctx context.Context, req Request) (*Proposal, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model,
		genai.Text(buildPrompt(req)), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty response")
	}
	return decodeProposal(text)
}
