package gatekeeper

import (
	"context"
	"strings"
	"testing"

	"github.com/FerryClaw/FerryClaw/internal/provider"
	"github.com/FerryClaw/FerryClaw/internal/tools"
)

type fakeProvider struct {
	response string
	calls    int
	lastReq  *provider.ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.calls++
	f.lastReq = req
	return &provider.ChatResponse{Content: f.response}, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func TestEvaluate_SkillsDirFastDeny(t *testing.T) {
	fake := &fakeProvider{}
	g := New(fake, "", true, nil)

	paths := []string{
		"/data/skills/web-search/SKILL.md",
		"workspace/skills",
		`C:\data\skills\thing.md`,
	}
	for _, p := range paths {
		res, err := g.Evaluate(context.Background(), "write_file", map[string]any{"path": p}, nil, nil)
		if err != nil {
			t.Fatalf("Evaluate(%q) error: %v", p, err)
		}
		if res.Allowed() {
			t.Errorf("expected deny for path %q", p)
		}
		if res.Suggestion == "" {
			t.Errorf("expected suggestion for path %q", p)
		}
	}
	if fake.calls != 0 {
		t.Errorf("fast deny must not call the LLM, got %d calls", fake.calls)
	}
}

func TestEvaluate_SkillsDenyIgnoresOtherTools(t *testing.T) {
	fake := &fakeProvider{response: `{"decision": "allow", "reason": "ok"}`}
	g := New(fake, "", true, nil)

	res, err := g.Evaluate(context.Background(), "read_file", map[string]any{"path": "/data/skills/x.md"}, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !res.Allowed() {
		t.Error("read_file under skills dir should not hit the fast deny")
	}
	if fake.calls != 1 {
		t.Errorf("expected LLM call for read_file, got %d", fake.calls)
	}
}

func TestEvaluate_DisabledAllowsWithoutLLM(t *testing.T) {
	fake := &fakeProvider{}
	g := New(fake, "", false, nil)

	res, err := g.Evaluate(context.Background(), "execute_shell", map[string]any{"command": "ls"}, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !res.Allowed() {
		t.Error("disabled gatekeeper must allow")
	}
	if res.Reason != "" {
		t.Errorf("expected empty reason, got %q", res.Reason)
	}
	if fake.calls != 0 {
		t.Errorf("disabled gatekeeper must not call the LLM, got %d calls", fake.calls)
	}
}

func TestEvaluate_AcceptsCallerContext(t *testing.T) {
	fake := &fakeProvider{response: `{"decision": "allow", "reason": "fine"}`}
	g := New(fake, "", true, nil)

	auth := &tools.AuthContext{CallerChatID: 42, CallerIsWeb: true}
	res, err := g.Evaluate(context.Background(), "web_search", map[string]any{"query": "go"}, nil, auth)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !res.Allowed() {
		t.Errorf("expected allow, got %+v", res)
	}
}

func TestEvaluate_FastDenyFiresEvenWhenDisabled(t *testing.T) {
	fake := &fakeProvider{}
	g := New(fake, "", false, nil)

	res, err := g.Evaluate(context.Background(), "edit_file", map[string]any{"path": "wrk/skills/SKILL.md"}, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if res.Allowed() {
		t.Error("skills dir write must be denied even when gatekeeper is disabled")
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		decision   Decision
		suggestion string
	}{
		{"allow", `{"decision": "allow", "reason": "ok"}`, Allow, ""},
		{"deny", `{"decision": "deny", "reason": "irrelevant", "suggestion": "Use X instead"}`, Deny, "Use X instead"},
		{"unknown decision fails closed", `{"decision": "maybe", "reason": "?"}`, Deny, ""},
		{"blank suggestion dropped", `{"decision": "deny", "reason": "no", "suggestion": "   "}`, Deny, ""},
		{"fenced", "```json\n{\"decision\": \"allow\", \"reason\": \"fine\"}\n```", Allow, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseResult(tt.text)
			if err != nil {
				t.Fatalf("parseResult() error: %v", err)
			}
			if res.Decision != tt.decision {
				t.Errorf("decision = %s, want %s", res.Decision, tt.decision)
			}
			if res.Suggestion != tt.suggestion {
				t.Errorf("suggestion = %q, want %q", res.Suggestion, tt.suggestion)
			}
		})
	}
}

func TestParseResult_BadJSON(t *testing.T) {
	if _, err := parseResult("no json here"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestEvaluate_ContextSnippetWindow(t *testing.T) {
	fake := &fakeProvider{response: `{"decision": "allow", "reason": "ok"}`}
	g := New(fake, "", true, nil)

	history := []provider.Message{
		{Role: "user", Content: "oldest"},
		{Role: "assistant", Content: "old"},
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: strings.Repeat("x", 400)},
	}
	if _, err := g.Evaluate(context.Background(), "web_search", map[string]any{"query": "go"}, history, nil); err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	prompt := fake.lastReq.Messages[0].Content
	if strings.Contains(prompt, "oldest") {
		t.Error("context snippet should only include the last 4 messages")
	}
	if strings.Contains(prompt, strings.Repeat("x", 301)) {
		t.Error("messages in the snippet should be truncated to 300 chars")
	}
	if !strings.Contains(prompt, "Requested tool: web_search") {
		t.Errorf("prompt missing tool name: %q", prompt)
	}
}

func TestEvaluate_InputPreviewTruncated(t *testing.T) {
	fake := &fakeProvider{response: `{"decision": "allow", "reason": "ok"}`}
	g := New(fake, "", true, nil)

	big := strings.Repeat("y", 2000)
	if _, err := g.Evaluate(context.Background(), "web_search", map[string]any{"query": big}, nil, nil); err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	prompt := fake.lastReq.Messages[0].Content
	idx := strings.Index(prompt, "Tool input (JSON): ")
	if idx < 0 {
		t.Fatalf("prompt missing input preview: %q", prompt)
	}
	preview := prompt[idx+len("Tool input (JSON): "):]
	if len(preview) > 510 {
		t.Errorf("input preview too long: %d chars", len(preview))
	}
}

type recordingAudit struct {
	tools     []string
	decisions []string
}

func (r *recordingAudit) RecordGateDecision(_ context.Context, tool, decision, _ string) {
	r.tools = append(r.tools, tool)
	r.decisions = append(r.decisions, decision)
}

func TestEvaluate_AuditRecorder(t *testing.T) {
	rec := &recordingAudit{}
	fake := &fakeProvider{response: `{"decision": "deny", "reason": "redundant"}`}
	g := New(fake, "", true, nil, WithRecorder(rec))

	if _, err := g.Evaluate(context.Background(), "web_search", map[string]any{"query": "go"}, nil, nil); err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if len(rec.decisions) != 1 || rec.decisions[0] != "deny" {
		t.Errorf("expected one recorded deny, got %v", rec.decisions)
	}
}
