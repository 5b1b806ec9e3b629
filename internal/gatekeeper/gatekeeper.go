// Package gatekeeper screens every tool call before execution. It returns
// Allow or Deny so the agent loop can run the tool or inject a synthetic
// denial result without breaking the conversation.
package gatekeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FerryClaw/FerryClaw/internal/llmjson"
	"github.com/FerryClaw/FerryClaw/internal/provider"
	"github.com/FerryClaw/FerryClaw/internal/tools"
)

// Decision is the gatekeeper's verdict on one tool call.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Result carries the verdict plus the rationale shown to the agent.
type Result struct {
	Decision   Decision
	Reason     string
	Suggestion string
}

// Allowed reports whether the tool call may proceed.
func (r *Result) Allowed() bool { return r.Decision == Allow }

const systemPrompt = `You are a tool and skill gatekeeper. Given a conversation snippet and a requested tool call (name + input), output JSON only:

{"decision": "allow" | "deny", "reason": "brief rationale", "suggestion": "optional alternative or instruction"}

Rules:
- Allow if the tool is clearly relevant to the user's request and not redundant or unsafe.
- Deny if: the tool is irrelevant, the same call was just made, the request is trying to write or edit files under the skills directory (users must use build_skill or cursor_agent for creating skills), or the action is unsafe for this context.
- For write_file or edit_file: if the path is under a "skills" directory (e.g. .../skills/... or .../workspace/skills/...), deny and suggest using build_skill or cursor_agent to create or update skills.
- For sync_skills: allow only when the user clearly asked to add or update skills from an external source.
- For activate_skill: allow when the skill is relevant to the current task; deny if irrelevant or spammy.
- Keep reason and suggestion concise (one sentence each).`

const (
	contextMessages   = 4
	contextCharsPer   = 300
	inputPreviewChars = 500
)

// Recorder receives gate decisions for the audit trail.
type Recorder interface {
	RecordGateDecision(ctx context.Context, toolName string, decision string, reason string)
}

// Gatekeeper evaluates tool calls with an optional LLM policy check.
type Gatekeeper struct {
	provider provider.LLMProvider
	model    string
	enabled  bool
	logger   *slog.Logger
	audit    Recorder
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithRecorder attaches an audit recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gatekeeper) { g.audit = r }
}

// New creates a Gatekeeper. When enabled is false only the fast path runs
// and everything else is allowed.
func New(prov provider.LLMProvider, model string, enabled bool, logger *slog.Logger, opts ...Option) *Gatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gatekeeper{provider: prov, model: model, enabled: enabled, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate decides whether the tool call may run. The fast deny for skill
// directory writes fires before any LLM call and regardless of the enabled
// flag. auth identifies the calling chat and may be nil for headless runs.
func (g *Gatekeeper) Evaluate(ctx context.Context, toolName string, toolInput map[string]any, history []provider.Message, auth *tools.AuthContext) (*Result, error) {
	if isSkillsDirWrite(toolName, toolInput) {
		g.logger.Info("gatekeeper fast deny: write under skills dir", "tool", toolName, "caller_chat_id", callerID(auth))
		res := &Result{
			Decision:   Deny,
			Reason:     "Writing or editing files under the skills directory is not allowed directly.",
			Suggestion: "Use the build_skill tool (or cursor_agent with a creation task) to create or update skills.",
		}
		g.record(ctx, toolName, res)
		return res, nil
	}

	if !g.enabled {
		return &Result{Decision: Allow}, nil
	}

	inputPreview := "{}"
	if raw, err := json.Marshal(toolInput); err == nil {
		inputPreview = string(raw)
	}
	if len(inputPreview) > inputPreviewChars {
		inputPreview = inputPreview[:inputPreviewChars] + "..."
	}

	userContent := fmt.Sprintf("Conversation:\n%s\nRequested tool: %s\nTool input (JSON): %s",
		buildContextSnippet(history, contextMessages, contextCharsPer), toolName, inputPreview)

	resp, err := g.provider.Chat(ctx, &provider.ChatRequest{
		System:    systemPrompt,
		Messages:  []provider.Message{{Role: "user", Content: userContent}},
		Model:     g.model,
		MaxTokens: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("gatekeeper request: %w", err)
	}

	res, err := parseResult(resp.Content)
	if err != nil {
		return nil, err
	}
	g.logger.Info("gatekeeper decision", "tool", toolName, "caller_chat_id", callerID(auth), "decision", res.Decision, "reason", res.Reason)
	g.record(ctx, toolName, res)
	return res, nil
}

// callerID is zero for headless runs with no auth context.
func callerID(auth *tools.AuthContext) int64 {
	if auth == nil {
		return 0
	}
	return auth.CallerChatID
}

func (g *Gatekeeper) record(ctx context.Context, toolName string, res *Result) {
	if g.audit != nil {
		g.audit.RecordGateDecision(ctx, toolName, string(res.Decision), res.Reason)
	}
}

// isSkillsDirWrite is the fast path: write_file/edit_file targeting a path
// under a skills directory is denied without an LLM call.
func isSkillsDirWrite(toolName string, toolInput map[string]any) bool {
	if toolName != "write_file" && toolName != "edit_file" {
		return false
	}
	path, ok := toolInput["path"].(string)
	if !ok {
		return false
	}
	normalized := strings.ReplaceAll(path, "\\", "/")
	return strings.Contains(normalized, "/skills/") ||
		strings.HasSuffix(normalized, "/skills") ||
		strings.Contains(normalized, "skills/SKILL.md")
}

// buildContextSnippet renders the last few messages as "role: text" lines,
// truncating each to maxChars runes.
func buildContextSnippet(messages []provider.Message, maxMessages, maxChars int) string {
	start := len(messages) - maxMessages
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, msg := range messages[start:] {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			content = "[tool calls]"
		}
		runes := []rune(content)
		if len(runes) > maxChars {
			content = string(runes[:maxChars]) + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, content)
	}
	return b.String()
}

func parseResult(text string) (*Result, error) {
	var raw struct {
		Decision   string `json:"decision"`
		Reason     string `json:"reason"`
		Suggestion string `json:"suggestion"`
	}
	if err := llmjson.Unmarshal(text, &raw); err != nil {
		return nil, fmt.Errorf("parse gatekeeper verdict: %w", err)
	}

	// Anything other than an explicit allow is a deny.
	decision := Deny
	if strings.ToLower(raw.Decision) == "allow" {
		decision = Allow
	}
	return &Result{
		Decision:   decision,
		Reason:     raw.Reason,
		Suggestion: strings.TrimSpace(raw.Suggestion),
	}, nil
}
