package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FerryClaw/FerryClaw/internal/agent"
	"github.com/FerryClaw/FerryClaw/internal/runhub"
	"github.com/FerryClaw/FerryClaw/internal/store"
)

func newTestServer(t *testing.T, reply string, runErr error, token string) (*Server, *store.Store) {
	return newGatedTestServer(t, reply, runErr, token, nil)
}

// gate, when non-nil, blocks the fake agent run until closed so tests
// can attach to the event stream before any events fire.
func newGatedTestServer(t *testing.T, reply string, runErr error, token string, gate chan struct{}) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	run := func(_ context.Context, req *agent.Request) (string, error) {
		if gate != nil {
			<-gate
		}
		if runErr != nil {
			return "", runErr
		}
		// The real loop stores the inbound message itself.
		personaID, err := st.GetOrCreateDefaultPersona(req.ChatID)
		if err != nil {
			return "", err
		}
		_ = st.StoreMessage(&store.StoredMessage{
			ID: "u-" + req.Text, ChatID: req.ChatID, PersonaID: personaID,
			SenderName: req.SenderName, Content: req.Text, Timestamp: time.Now().UTC(),
		})
		if req.Sink != nil {
			req.Sink(agent.Event{Type: agent.EventIteration, Iteration: 1})
		}
		return reply, nil
	}
	persist := func(_ context.Context, chatID int64, text string) error {
		personaID, err := st.GetOrCreateDefaultPersona(chatID)
		if err != nil {
			return err
		}
		return st.StoreMessage(&store.StoredMessage{
			ID: "b-" + text, ChatID: chatID, PersonaID: personaID,
			SenderName: "ferryclaw", Content: text, IsFromBot: true, Timestamp: time.Now().UTC(),
		})
	}
	return New(st, runhub.NewHub(), run, persist, token, nil), st
}

func TestSendStoresAndReplies(t *testing.T) {
	srv, st := newTestServer(t, "hi there", nil, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/send", "application/json",
		strings.NewReader(`{"message":"hello","session_key":"alpha"}`))
	if err != nil {
		t.Fatalf("POST /api/send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		OK       bool   `json:"ok"`
		ChatID   int64  `json:"chat_id"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Response != "hi there" {
		t.Errorf("body = %+v", body)
	}

	chatType, err := st.GetChatType(body.ChatID)
	if err != nil || chatType != "web" {
		t.Errorf("chat type = %q, %v", chatType, err)
	}
	msgs, _ := st.GetRecentMessages(body.ChatID, 10)
	if len(msgs) != 2 || !msgs[1].IsFromBot {
		t.Errorf("stored %d messages, want user + bot", len(msgs))
	}
}

func TestSendSkipsPersistingEmptyReply(t *testing.T) {
	srv, st := newTestServer(t, "", nil, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/send", "application/json",
		strings.NewReader(`{"message":"hello","session_key":"alpha"}`))
	if err != nil {
		t.Fatalf("POST /api/send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Only the inbound user message is stored; no empty bot row.
	msgs, err := st.GetRecentMessages(body.ChatID, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].IsFromBot {
		t.Errorf("stored %d messages, want only the user message", len(msgs))
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/send", "application/json",
		strings.NewReader(`{"message":"  "}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthTokenEnforced(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil, "secret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with header: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("header token: status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/health?token=secret")
	if err != nil {
		t.Fatalf("GET with query token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("query token: status = %d", resp.StatusCode)
	}
}

func TestSendStreamDeliversSSE(t *testing.T) {
	gate := make(chan struct{})
	srv, _ := newGatedTestServer(t, strings.Repeat("a", 120), nil, "", gate)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/send_stream", "application/json",
		strings.NewReader(`{"message":"go"}`))
	if err != nil {
		t.Fatalf("POST /api/send_stream: %v", err)
	}
	var started struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if started.RunID == "" {
		t.Fatal("empty run_id")
	}

	// The stream handler flushes headers on attach, so once Get
	// returns the subscription is live and the run can proceed.
	stream, err := http.Get(ts.URL + "/api/stream?run_id=" + started.RunID)
	if err != nil {
		t.Fatalf("GET /api/stream: %v", err)
	}
	defer stream.Body.Close()
	close(gate)
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var events []string
	var deltas int
	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			evt := strings.TrimPrefix(line, "event: ")
			events = append(events, evt)
			if evt == "delta" {
				deltas++
			}
		}
	}
	if len(events) == 0 || events[len(events)-1] != "done" {
		t.Fatalf("events = %v, want trailing done", events)
	}
	// 120 chars at 80 per chunk.
	if deltas != 2 {
		t.Errorf("delta events = %d, want 2", deltas)
	}
}

func TestStreamUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t, "x", nil, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stream?run_id=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResetDeletesSession(t *testing.T) {
	srv, st := newTestServer(t, "ok", nil, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if _, err := http.Post(ts.URL+"/api/send", "application/json",
		strings.NewReader(`{"message":"hello","session_key":"gone"}`)); err != nil {
		t.Fatalf("seed send: %v", err)
	}
	chatID := sessionChatID("gone")
	if n, _ := st.CountMessages(chatID); n == 0 {
		t.Fatal("seed produced no messages")
	}

	resp, err := http.Post(ts.URL+"/api/reset", "application/json",
		strings.NewReader(`{"session_key":"gone"}`))
	if err != nil {
		t.Fatalf("POST /api/reset: %v", err)
	}
	resp.Body.Close()
	if n, _ := st.CountMessages(chatID); n != 0 {
		t.Errorf("messages after reset = %d", n)
	}
}

func TestSessionsListing(t *testing.T) {
	srv, _ := newTestServer(t, "ok", nil, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, key := range []string{"alpha", "beta"} {
		if _, err := http.Post(ts.URL+"/api/send", "application/json",
			strings.NewReader(`{"message":"hi","session_key":"`+key+`"}`)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Sessions []sessionItem `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(body.Sessions))
	}
	keys := map[string]bool{}
	for _, s := range body.Sessions {
		keys[s.SessionKey] = true
	}
	if !keys["alpha"] || !keys["beta"] {
		t.Errorf("session keys = %v", keys)
	}
}

func TestNormalizeSessionKey(t *testing.T) {
	for in, want := range map[string]string{"": "main", "  ": "main", " x ": "x"} {
		if got := normalizeSessionKey(in); got != want {
			t.Errorf("normalizeSessionKey(%q) = %q, want %q", in, got, want)
		}
	}
}
