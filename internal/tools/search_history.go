package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/FerryClaw/FerryClaw/internal/store"
)

// SearchHistoryTool searches a chat's stored messages.
type SearchHistoryTool struct {
	store *store.Store
}

// NewSearchHistoryTool creates the tool around the store.
func NewSearchHistoryTool(st *store.Store) *SearchHistoryTool {
	return &SearchHistoryTool{store: st}
}

func (t *SearchHistoryTool) Name() string { return "search_chat_history" }

func (t *SearchHistoryTool) Description() string {
	return `Search past messages in this chat. Use this to recall past conversations, facts, or context the user mentioned previously. Always use this before saying "I don't remember" or asking the user to repeat something.`
}

func (t *SearchHistoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Keyword or phrase to search for in past messages",
			},
			"chat_id": map[string]any{
				"type":        "integer",
				"description": "The chat ID to search in (use the current chat_id from the system prompt)",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 20, max: 100)",
			},
		},
		"required": []string{"query", "chat_id"},
	}
}

func (t *SearchHistoryTool) Execute(_ context.Context, params map[string]any) (string, error) {
	query := strings.TrimSpace(GetString(params, "query", ""))
	if query == "" {
		return "Error: missing or empty 'query' parameter", nil
	}
	chatID := GetInt64(params, "chat_id", 0)
	if chatID == 0 {
		return "Error: missing 'chat_id' parameter", nil
	}

	if auth := AuthFromParams(params); !auth.CanAccessChat(chatID) {
		return fmt.Sprintf("Permission denied: cannot search history for chat %d", chatID), nil
	}

	limit := GetInt(params, "limit", 20)
	messages, err := t.store.SearchMessages(chatID, query, limit)
	if err != nil {
		return fmt.Sprintf("Error searching history: %v", err), nil
	}
	if len(messages) == 0 {
		return fmt.Sprintf("No messages found matching '%s'", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d message(s) matching '%s':\n", len(messages), query)
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.SenderName, m.Content)
	}
	return b.String(), nil
}
