// Package web serves the chat UI and its JSON/SSE API.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FerryClaw/FerryClaw/internal/agent"
	"github.com/FerryClaw/FerryClaw/internal/channels"
	"github.com/FerryClaw/FerryClaw/internal/runhub"
	"github.com/FerryClaw/FerryClaw/internal/store"
	webassets "github.com/FerryClaw/FerryClaw/web"
)

const (
	defaultSessionKey = "main"
	defaultSender     = "web-user"
	streamChunkChars  = 80
	streamChunkDelay  = 18 * time.Millisecond
	runReapDelay      = 300 * time.Second
)

// RunFunc executes one agent turn for a web session and returns the reply.
type RunFunc func(ctx context.Context, req *agent.Request) (string, error)

// Server is the web chat surface.
type Server struct {
	store     *store.Store
	hub       *runhub.Hub
	run       RunFunc
	persist   func(ctx context.Context, chatID int64, text string) error
	authToken string
	logger    *slog.Logger
}

// New creates a Server. persist stores the bot reply against the chat;
// authToken empty disables auth.
func New(st *store.Store, hub *runhub.Hub, run RunFunc, persist func(ctx context.Context, chatID int64, text string) error, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     st,
		hub:       hub,
		run:       run,
		persist:   persist,
		authToken: authToken,
		logger:    logger.With("component", "web"),
	}
}

// Handler builds the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(webassets.Files)))
	mux.HandleFunc("/api/health", s.withAuth(s.handleHealth))
	mux.HandleFunc("/api/sessions", s.withAuth(s.handleSessions))
	mux.HandleFunc("/api/history", s.withAuth(s.handleHistory))
	mux.HandleFunc("/api/send", s.withAuth(s.handleSend))
	mux.HandleFunc("/api/send_stream", s.withAuth(s.handleSendStream))
	mux.HandleFunc("/api/stream", s.withAuth(s.handleStream))
	mux.HandleFunc("/api/reset", s.withAuth(s.handleReset))
	return mux
}

// withAuth checks the bearer token; the ?token= query form exists for
// EventSource clients that cannot set headers.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			provided := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if provided == "" {
				provided = r.URL.Query().Get("token")
			}
			if provided != s.authToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"ok": true})
}

type sessionItem struct {
	SessionKey         string `json:"session_key"`
	ChatID             int64  `json:"chat_id"`
	LastMessageTime    string `json:"last_message_time"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	chats, err := s.store.GetChatsByType("web", 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sessions := make([]sessionItem, 0, len(chats))
	for _, c := range chats {
		key := c.ChatTitle
		if key == "" {
			key = fmt.Sprintf("web-%d", c.ChatID)
		}
		sessions = append(sessions, sessionItem{
			SessionKey:         key,
			ChatID:             c.ChatID,
			LastMessageTime:    c.LastMessageTime,
			LastMessagePreview: c.LastMessagePreview,
		})
	}
	writeJSON(w, map[string]any{"ok": true, "sessions": sessions})
}

type historyItem struct {
	ID         string `json:"id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	IsFromBot  bool   `json:"is_from_bot"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionKey := normalizeSessionKey(r.URL.Query().Get("session_key"))
	chatID := sessionChatID(sessionKey)

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	messages, err := s.store.GetRecentMessages(chatID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	items := make([]historyItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, historyItem{
			ID:         m.ID,
			SenderName: m.SenderName,
			Content:    m.Content,
			IsFromBot:  m.IsFromBot,
			Timestamp:  m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, map[string]any{
		"ok": true, "session_key": sessionKey, "chat_id": chatID, "messages": items,
	})
}

type sendRequest struct {
	Message    string `json:"message"`
	SessionKey string `json:"session_key"`
	SenderName string `json:"sender_name"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	sessionKey, chatID, response, err := s.respond(r.Context(), &body, nil)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "message is required") {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]any{
		"ok": true, "session_key": sessionKey, "chat_id": chatID, "response": response,
	})
}

// handleSendStream kicks off a background run and returns its id; the
// client follows up on /api/stream.
func (s *Server) handleSendStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	broker := s.hub.Create(runID)

	go func() {
		defer s.hub.ReapAfter(runID, runReapDelay)

		broker.Publish(runhub.Event{Event: "status", Data: jsonData(map[string]any{"message": "running"})})

		sink := func(e agent.Event) {
			switch e.Type {
			case agent.EventIteration:
				broker.Publish(runhub.Event{Event: "status", Data: jsonData(map[string]any{
					"message": fmt.Sprintf("iteration %d", e.Iteration),
				})})
			case agent.EventToolStart:
				broker.Publish(runhub.Event{Event: "tool_start", Data: jsonData(map[string]any{
					"name": e.ToolName,
				})})
			case agent.EventToolResult:
				broker.Publish(runhub.Event{Event: "tool_result", Data: jsonData(map[string]any{
					"name": e.ToolName, "is_error": e.IsError, "preview": e.Preview,
				})})
			}
		}

		_, _, response, err := s.respond(context.Background(), &body, sink)
		if err != nil {
			broker.Publish(runhub.Event{Event: "error", Data: jsonData(map[string]any{"error": err.Error()})})
			return
		}
		for _, chunk := range chunkRunes(response, streamChunkChars) {
			broker.Publish(runhub.Event{Event: "delta", Data: jsonData(map[string]any{"delta": chunk})})
			time.Sleep(streamChunkDelay)
		}
		broker.Publish(runhub.Event{Event: "done", Data: jsonData(map[string]any{"response": response})})
	}()

	writeJSON(w, map[string]any{"ok": true, "run_id": runID})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	broker := s.hub.Get(runID)
	if broker == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := broker.Subscribe()
	defer cancel()

	// Commit headers so clients know the subscription is live.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
			flusher.Flush()
			if evt.Event == "done" || evt.Event == "error" {
				return
			}
		}
	}
}

type resetRequest struct {
	SessionKey string `json:"session_key"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body resetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	chatID := sessionChatID(normalizeSessionKey(body.SessionKey))
	deleted, err := s.store.DeleteSession(chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "deleted": deleted})
}

// respond runs a full turn: ensure the web chat row, run the agent, and
// persist the reply.
func (s *Server) respond(ctx context.Context, body *sendRequest, sink agent.Sink) (string, int64, string, error) {
	text := strings.TrimSpace(body.Message)
	if text == "" {
		return "", 0, "", fmt.Errorf("message is required")
	}
	sessionKey := normalizeSessionKey(body.SessionKey)
	chatID := sessionChatID(sessionKey)
	sender := strings.TrimSpace(body.SenderName)
	if sender == "" {
		sender = defaultSender
	}

	if err := s.store.UpsertChat(chatID, sessionKey, "web"); err != nil {
		return "", 0, "", err
	}
	response, err := s.run(ctx, &agent.Request{
		ChatID:     chatID,
		SenderName: sender,
		Text:       text,
		Sink:       sink,
	})
	if err != nil {
		return "", 0, "", err
	}
	if response != "" {
		if err := s.persist(ctx, chatID, response); err != nil {
			s.logger.Error("persist reply failed", "chat_id", chatID, "error", err)
		}
	}
	return sessionKey, chatID, response, nil
}

func normalizeSessionKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return defaultSessionKey
	}
	return key
}

// sessionChatID maps a session key to a stable chat id; these chats are
// marked chat_type="web".
func sessionChatID(sessionKey string) int64 {
	return channels.CanonicalChatID("web", sessionKey)
}

func chunkRunes(text string, max int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	return append(out, string(runes))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonData(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
