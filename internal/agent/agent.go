// Package agent implements the reasoning loop: plan, call the model,
// screen and execute tool calls, and produce the final reply text.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FerryClaw/FerryClaw/internal/gatekeeper"
	"github.com/FerryClaw/FerryClaw/internal/planner"
	"github.com/FerryClaw/FerryClaw/internal/provider"
	"github.com/FerryClaw/FerryClaw/internal/store"
	"github.com/FerryClaw/FerryClaw/internal/tools"
)

// Config holds loop behaviour settings.
type Config struct {
	Model             string
	MaxTokens         int
	Temperature       float64
	MaxToolIterations int
	BotUsername       string
	HistoryWindow     int
	// ControlChatIDs are operator chats allowed to message any chat.
	ControlChatIDs []int64
}

// Request is one inbound message for the loop to answer.
type Request struct {
	ChatID     int64
	SenderName string
	Text       string
	// Headless marks scheduler-driven runs with no live caller; the
	// inbound prompt is not stored as a user message.
	Headless bool
	Sink     Sink
}

// Agent owns the reasoning loop and its collaborators.
type Agent struct {
	provider   provider.LLMProvider
	registry   *tools.Registry
	store      *store.Store
	planner    *planner.Planner
	gatekeeper *gatekeeper.Gatekeeper
	cfg        Config
	logger     *slog.Logger
}

// New creates an Agent. planner may be nil (plan-first disabled);
// gatekeeper must not be nil.
func New(prov provider.LLMProvider, registry *tools.Registry, st *store.Store, pl *planner.Planner, gk *gatekeeper.Gatekeeper, cfg Config, logger *slog.Logger) *Agent {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = 10
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		provider:   prov,
		registry:   registry,
		store:      st,
		planner:    pl,
		gatekeeper: gk,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run answers one request and returns the final reply text. The reply is
// not stored or delivered here; that is the caller's job.
func (a *Agent) Run(ctx context.Context, req *Request) (string, error) {
	history, err := a.loadHistory(req.ChatID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	if !req.Headless {
		if err := a.storeUserMessage(req); err != nil {
			return "", err
		}
	}

	if a.planner != nil {
		plan, err := a.planner.Plan(ctx, req.Text, recentContext(history))
		if err != nil {
			return "", err
		}
		if plan.Strategy == planner.StrategyDelegate && len(plan.DelegateTasks) > 0 {
			return a.runDelegated(ctx, req, history, plan)
		}
		// Empty delegate task lists fall through to the direct path.
	}

	messages := append(history, provider.Message{Role: "user", Content: req.Text})
	return a.runLoop(ctx, req, messages)
}

// runLoop is the tool-calling conversation loop.
func (a *Agent) runLoop(ctx context.Context, req *Request, messages []provider.Message) (string, error) {
	auth := &tools.AuthContext{CallerChatID: req.ChatID, ControlChatIDs: a.cfg.ControlChatIDs}
	if chatType, err := a.store.GetChatType(req.ChatID); err == nil && chatType == "web" {
		auth.CallerIsWeb = true
	}

	for iteration := 1; iteration <= a.cfg.MaxToolIterations; iteration++ {
		req.Sink.emit(Event{Type: EventIteration, Iteration: iteration})

		resp, err := a.provider.Chat(ctx, &provider.ChatRequest{
			System:      a.systemPrompt(req),
			Messages:    messages,
			Tools:       a.registry.Definitions(),
			Model:       a.cfg.Model,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("agent loop: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := a.executeToolCall(ctx, call, messages, auth, req.Sink)
			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("agent loop: no final response after %d iterations", a.cfg.MaxToolIterations)
}

// executeToolCall screens one call through the gatekeeper and runs it.
// Denials and tool errors come back as tool results so the conversation
// continues.
func (a *Agent) executeToolCall(ctx context.Context, call provider.ToolCall, history []provider.Message, auth *tools.AuthContext, sink Sink) string {
	sink.emit(Event{Type: EventToolStart, ToolName: call.Name})

	verdict, err := a.gatekeeper.Evaluate(ctx, call.Name, call.Arguments, history, auth)
	if err != nil {
		// Screening infrastructure failure is not a denial; it surfaces
		// as an errored tool result.
		a.logger.Error("gatekeeper evaluation failed", "tool", call.Name, "error", err)
		result := fmt.Sprintf("Tool screening failed: %v", err)
		sink.emit(Event{Type: EventToolResult, ToolName: call.Name, IsError: true, Preview: preview(result)})
		return result
	}
	if !verdict.Allowed() {
		result := fmt.Sprintf("Tool call denied: %s", verdict.Reason)
		if verdict.Suggestion != "" {
			result += " Suggestion: " + verdict.Suggestion
		}
		sink.emit(Event{Type: EventToolResult, ToolName: call.Name, IsError: true, Preview: preview(result)})
		return result
	}

	params := tools.WithAuth(call.Arguments, auth)
	result, err := a.registry.Execute(ctx, call.Name, params)
	if err != nil {
		result = fmt.Sprintf("Error: %v", err)
		sink.emit(Event{Type: EventToolResult, ToolName: call.Name, IsError: true, Preview: preview(result)})
		return result
	}
	sink.emit(Event{Type: EventToolResult, ToolName: call.Name, Preview: preview(result)})
	return result
}

// runDelegated runs each planned subtask through its own loop and then
// synthesizes a single reply from the collected results.
func (a *Agent) runDelegated(ctx context.Context, req *Request, history []provider.Message, plan *planner.Plan) (string, error) {
	a.logger.Info("delegating", "tasks", len(plan.DelegateTasks), "summary", plan.Summary)

	var results strings.Builder
	for i, task := range plan.DelegateTasks {
		sub := &Request{ChatID: req.ChatID, SenderName: req.SenderName, Headless: true, Sink: req.Sink}
		messages := append(append([]provider.Message(nil), history...), provider.Message{Role: "user", Content: task})
		out, err := a.runLoop(ctx, sub, messages)
		if err != nil {
			out = fmt.Sprintf("(subtask failed: %v)", err)
		}
		fmt.Fprintf(&results, "Subtask %d: %s\nResult: %s\n\n", i+1, task, out)
	}

	synthesis := fmt.Sprintf("The user asked: %s\n\nSubtask results:\n%s\nWrite the final reply to the user based on these results.", req.Text, results.String())
	resp, err := a.provider.Chat(ctx, &provider.ChatRequest{
		System:      a.systemPrompt(req),
		Messages:    append(history, provider.Message{Role: "user", Content: synthesis}),
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("delegation synthesis: %w", err)
	}
	return resp.Content, nil
}

func (a *Agent) systemPrompt(req *Request) string {
	return fmt.Sprintf(`You are %s, a helpful assistant reachable over chat.

Current chat_id: %d
Current time: %s

Use the available tools when they help. Keep replies concise and conversational.`,
		a.cfg.BotUsername, req.ChatID, time.Now().UTC().Format(time.RFC3339))
}

// loadHistory maps stored chat history onto chat roles.
func (a *Agent) loadHistory(chatID int64) ([]provider.Message, error) {
	stored, err := a.store.GetRecentMessages(chatID, a.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Message, 0, len(stored))
	for _, m := range stored {
		role := "user"
		if m.IsFromBot {
			role = "assistant"
		}
		out = append(out, provider.Message{Role: role, Content: m.Content})
	}
	return out, nil
}

func (a *Agent) storeUserMessage(req *Request) error {
	personaID, err := a.store.GetOrCreateDefaultPersona(req.ChatID)
	if err != nil {
		return fmt.Errorf("resolve persona: %w", err)
	}
	sender := req.SenderName
	if sender == "" {
		sender = "user"
	}
	return a.store.StoreMessage(&store.StoredMessage{
		ID:         uuid.NewString(),
		ChatID:     req.ChatID,
		PersonaID:  personaID,
		SenderName: sender,
		Content:    req.Text,
		Timestamp:  time.Now().UTC(),
	})
}

// recentContext renders the tail of the history for the planner.
func recentContext(history []provider.Message) string {
	start := len(history) - 4
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, m := range history[start:] {
		content := m.Content
		runes := []rune(content)
		if len(runes) > 300 {
			content = string(runes[:300]) + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}
