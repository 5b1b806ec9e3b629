// Package planner classifies incoming user messages before the agent loop
// runs. Simple requests get a direct reply; decomposable work is flagged
// for delegation to sub-agent runs.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FerryClaw/FerryClaw/internal/llmjson"
	"github.com/FerryClaw/FerryClaw/internal/provider"
)

// Strategy is the planner's top-level verdict for a message.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyDelegate Strategy = "delegate"
)

// Plan is the planner's output for one user message.
type Plan struct {
	Strategy      Strategy `json:"strategy"`
	Summary       string   `json:"summary"`
	DelegateTasks []string `json:"delegate_tasks"`
}

const systemPrompt = `You are an orchestrator. Given a user message, output a JSON plan and nothing else.

Output format (valid JSON only, no markdown or extra text):
{"strategy": "direct" | "delegate", "summary": "brief rationale", "delegate_tasks": ["task1", "task2"]}

Rules:
- Use "direct" for: simple greetings, quick questions, single-step requests, clarification, or when unsure.
- Use "delegate" for: multi-step research, parallel subtasks, clearly decomposable work (e.g. "research X and compare with Y").
- delegate_tasks: required when strategy is "delegate"; list clear, independent tasks. Omit or empty array when strategy is "direct".
- Prefer "direct" when unsure; avoid over-delegation.`

// Planner produces a Plan for each user message using a dedicated LLM call.
type Planner struct {
	provider provider.LLMProvider
	model    string
	logger   *slog.Logger
}

// New creates a Planner. An empty model uses the provider's default.
func New(prov provider.LLMProvider, model string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{provider: prov, model: model, logger: logger}
}

// Plan classifies a user message. recentContext may be empty; when present
// it is prepended to the message so the planner sees the conversation tail.
func (p *Planner) Plan(ctx context.Context, userMessage, recentContext string) (*Plan, error) {
	content := userMessage
	if recentContext != "" {
		content = fmt.Sprintf("Recent context:\n%s\n\nUser message: %s", recentContext, userMessage)
	}

	resp, err := p.provider.Chat(ctx, &provider.ChatRequest{
		System:    systemPrompt,
		Messages:  []provider.Message{{Role: "user", Content: content}},
		Model:     p.model,
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("planner request: %w", err)
	}

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, err
	}

	p.logger.Info("planner verdict",
		"strategy", plan.Strategy,
		"summary", plan.Summary,
		"delegate_tasks", len(plan.DelegateTasks))
	return plan, nil
}

// ParsePlan extracts and decodes the JSON plan from raw LLM output.
// Markdown fences and surrounding prose are tolerated.
func ParsePlan(text string) (*Plan, error) {
	var plan Plan
	if err := llmjson.Unmarshal(text, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	switch plan.Strategy {
	case StrategyDirect, StrategyDelegate:
	default:
		return nil, fmt.Errorf("parse plan: unknown strategy %q", plan.Strategy)
	}
	return &plan, nil
}
