package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FerryClaw/FerryClaw/internal/delivery"
	"github.com/FerryClaw/FerryClaw/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&ReadFileTool{})
	r.Register(&ListDirTool{})

	if _, ok := r.Get("read_file"); !ok {
		t.Error("read_file should be registered")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unknown tool should not resolve")
	}

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "read_file" {
		t.Errorf("definitions should preserve registration order, got %s first", defs[0].Name)
	}

	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Error("executing an unknown tool should fail")
	}
}

func TestAuthContext(t *testing.T) {
	auth := &AuthContext{CallerChatID: 1, CallerIsWeb: true}
	params := WithAuth(map[string]any{"x": 1}, auth)

	if got := AuthFromParams(params); got != auth {
		t.Error("auth context should round-trip through params")
	}
	if AuthFromParams(map[string]any{}) != nil {
		t.Error("missing auth should be nil")
	}

	stripped := StripAuth(params)
	if _, ok := stripped[authParamKey]; ok {
		t.Error("StripAuth should remove the reserved key")
	}
	if stripped["x"] != 1 {
		t.Error("StripAuth should keep other params")
	}

	if auth.CanAccessChat(2) {
		t.Error("web caller must not access other chats")
	}
	if !auth.CanAccessChat(1) {
		t.Error("web caller may access its own chat")
	}
	other := &AuthContext{CallerChatID: 1}
	if !other.CanAccessChat(2) {
		t.Error("non-web caller is unrestricted at this layer")
	}
	var nilAuth *AuthContext
	if !nilAuth.CanAccessChat(5) {
		t.Error("absent auth means no restriction")
	}
}

func TestExecTool(t *testing.T) {
	tool := NewExecTool(10*time.Second, false, "")

	out, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected command output, got %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{"command": "rm -rf /tmp/x"})
	if !strings.Contains(out, "blocked") {
		t.Errorf("dangerous command should be blocked, got %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{})
	if !strings.Contains(out, "command is required") {
		t.Errorf("missing command should report an error, got %q", out)
	}
}

func TestFileTools(t *testing.T) {
	dir := t.TempDir()
	write := &WriteFileTool{Workspace: dir}
	read := &ReadFileTool{}
	edit := &EditFileTool{Workspace: dir}
	list := &ListDirTool{}

	path := filepath.Join(dir, "notes", "a.txt")
	out, _ := write.Execute(context.Background(), map[string]any{"path": path, "content": "hello world"})
	if !strings.Contains(out, "Successfully wrote") {
		t.Fatalf("write failed: %q", out)
	}

	out, _ = read.Execute(context.Background(), map[string]any{"path": path})
	if out != "hello world" {
		t.Errorf("read got %q", out)
	}

	out, _ = edit.Execute(context.Background(), map[string]any{"path": path, "old_text": "world", "new_text": "there"})
	if !strings.Contains(out, "Successfully edited") {
		t.Fatalf("edit failed: %q", out)
	}
	out, _ = read.Execute(context.Background(), map[string]any{"path": path})
	if out != "hello there" {
		t.Errorf("after edit got %q", out)
	}

	out, _ = list.Execute(context.Background(), map[string]any{"path": filepath.Join(dir, "notes")})
	if !strings.Contains(out, "a.txt") {
		t.Errorf("list got %q", out)
	}

	// Workspace restriction.
	out, _ = write.Execute(context.Background(), map[string]any{"path": "/tmp/outside.txt", "content": "x"})
	if !strings.Contains(out, "outside workspace") {
		t.Errorf("out-of-workspace write should be refused, got %q", out)
	}
}

func TestSendMessageTool(t *testing.T) {
	st := testStore(t)
	if err := st.UpsertChat(1, "web session", "web"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if err := st.UpsertChat(2, "other web session", "web"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	d := delivery.New(st, "ferryclaw_bot", nil)
	tool := NewSendMessageTool(d)

	// Web caller confined to its own chat.
	params := WithAuth(map[string]any{"chat_id": float64(2), "message": "hi"},
		&AuthContext{CallerChatID: 1, CallerIsWeb: true})
	out, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "Permission denied") {
		t.Errorf("expected denial, got %q", out)
	}
	if n, _ := st.CountMessages(2); n != 0 {
		t.Errorf("denied send must not persist, got %d rows", n)
	}

	// Same chat is fine.
	params = WithAuth(map[string]any{"chat_id": float64(1), "message": "hi"},
		&AuthContext{CallerChatID: 1, CallerIsWeb: true})
	out, err = tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "Message sent") {
		t.Errorf("expected success, got %q", out)
	}
	if n, _ := st.CountMessages(1); n != 1 {
		t.Errorf("expected 1 stored message, got %d", n)
	}
}

func TestSendMessageToolChatAccess(t *testing.T) {
	st := testStore(t)
	if err := st.UpsertChat(100, "operator", "telegram"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if err := st.UpsertChat(200, "target", "telegram"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	d := delivery.New(st, "ferryclaw_bot", nil)
	tool := NewSendMessageTool(d)

	// Non-web caller without control status may not target another chat;
	// the denial fires before any send attempt.
	params := WithAuth(map[string]any{"chat_id": float64(200), "message": "hello"},
		&AuthContext{CallerChatID: 100})
	out, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "Permission denied") {
		t.Errorf("expected denial, got %q", out)
	}
	if n, _ := st.CountMessages(200); n != 0 {
		t.Errorf("denied send must not persist, got %d rows", n)
	}

	// A configured control chat may target any chat.
	params = WithAuth(map[string]any{"chat_id": float64(200), "message": "hello"},
		&AuthContext{CallerChatID: 100, ControlChatIDs: []int64{100}})
	out, err = tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "Message sent") {
		t.Errorf("control chat should be allowed, got %q", out)
	}
	if n, _ := st.CountMessages(200); n != 1 {
		t.Errorf("expected 1 stored message, got %d", n)
	}
}

func TestSendMessageToolWebControlCallerStillConfined(t *testing.T) {
	st := testStore(t)
	if err := st.UpsertChat(100, "web-main", "web"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if err := st.UpsertChat(200, "group", "telegram"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	d := delivery.New(st, "ferryclaw_bot", nil)
	tool := NewSendMessageTool(d)

	params := WithAuth(map[string]any{"chat_id": float64(200), "message": "hello"},
		&AuthContext{CallerChatID: 100, CallerIsWeb: true, ControlChatIDs: []int64{100}})
	out, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "web chats cannot operate on other chats") {
		t.Errorf("web caller must get the web denial even as a control chat, got %q", out)
	}
}

func TestAuthorizeChatAccess(t *testing.T) {
	tests := []struct {
		name    string
		auth    *AuthContext
		chatID  int64
		allowed bool
	}{
		{"nil auth is unrestricted", nil, 5, true},
		{"own chat", &AuthContext{CallerChatID: 7}, 7, true},
		{"other chat denied", &AuthContext{CallerChatID: 7}, 8, false},
		{"control caller allowed", &AuthContext{CallerChatID: 7, ControlChatIDs: []int64{7}}, 8, true},
		{"control list without caller", &AuthContext{CallerChatID: 7, ControlChatIDs: []int64{9}}, 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.AuthorizeChatAccess(tt.chatID)
			if tt.allowed && err != nil {
				t.Errorf("unexpected denial: %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("expected denial")
			}
		})
	}
}

func TestSearchHistoryTool(t *testing.T) {
	st := testStore(t)
	personaID, _ := st.GetOrCreateDefaultPersona(1)
	for i, text := range []string{"we talked about ferries", "unrelated note", "ferry schedule at nine"} {
		st.StoreMessage(&store.StoredMessage{
			ID: string(rune('a' + i)), ChatID: 1, PersonaID: personaID,
			SenderName: "user", Content: text,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	tool := NewSearchHistoryTool(st)
	out, err := tool.Execute(context.Background(), map[string]any{"query": "ferr", "chat_id": float64(1)})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "2 message(s)") {
		t.Errorf("expected 2 matches, got %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{"query": "nothing here", "chat_id": float64(1)})
	if !strings.Contains(out, "No messages found") {
		t.Errorf("expected no matches, got %q", out)
	}

	params := WithAuth(map[string]any{"query": "ferr", "chat_id": float64(1)},
		&AuthContext{CallerChatID: 9, CallerIsWeb: true})
	out, _ = tool.Execute(context.Background(), params)
	if !strings.Contains(out, "Permission denied") {
		t.Errorf("web caller must not search other chats, got %q", out)
	}
}

func TestRegisterTaskTool(t *testing.T) {
	st := testStore(t)
	tool := NewRegisterTaskTool(st, time.UTC)

	out, err := tool.Execute(context.Background(), map[string]any{
		"chat_id":        float64(5),
		"prompt":         "daily digest",
		"schedule_type":  "cron",
		"schedule_value": "0 9 * * *",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out, "registered") {
		t.Fatalf("expected registration confirmation, got %q", out)
	}

	tasks, _ := st.ListScheduledTasks()
	if len(tasks) != 1 || tasks[0].NextRun == nil {
		t.Fatalf("expected 1 task with next_run, got %+v", tasks)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{
		"chat_id":        float64(5),
		"prompt":         "x",
		"schedule_type":  "cron",
		"schedule_value": "bad",
	})
	if !strings.Contains(out, "invalid cron") {
		t.Errorf("expected cron validation error, got %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{
		"chat_id":        float64(5),
		"prompt":         "x",
		"schedule_type":  "once",
		"schedule_value": "2001-01-01T00:00:00Z",
	})
	if !strings.Contains(out, "must be in the future") {
		t.Errorf("expected past-time rejection, got %q", out)
	}

	list := NewListScheduledTasksTool(st)
	out, err = list.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(out, "daily digest") {
		t.Errorf("expected task in listing, got %q", out)
	}
}
