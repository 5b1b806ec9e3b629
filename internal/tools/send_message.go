package tools

import (
	"context"
	"fmt"

	"github.com/FerryClaw/FerryClaw/internal/delivery"
)

// SendMessageTool lets the agent push a message to a chat proactively,
// outside the normal reply flow (reminders, scheduled notifications).
type SendMessageTool struct {
	deliverer *delivery.Deliverer
}

// NewSendMessageTool creates the tool around a deliverer.
func NewSendMessageTool(d *delivery.Deliverer) *SendMessageTool {
	return &SendMessageTool{deliverer: d}
}

func (t *SendMessageTool) Name() string { return "send_message" }

func (t *SendMessageTool) Description() string {
	return "Send a message to a chat. Use for reminders, scheduled notifications, or messaging another chat the user asked you to contact."
}

func (t *SendMessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chat_id": map[string]any{
				"type":        "integer",
				"description": "The target chat ID (use the current chat_id from the system prompt unless told otherwise)",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The message text to send",
			},
		},
		"required": []string{"chat_id", "message"},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	chatID := GetInt64(params, "chat_id", 0)
	message := GetString(params, "message", "")
	if chatID == 0 {
		return "Error: chat_id is required", nil
	}
	if message == "" {
		return "Error: message is required", nil
	}

	if auth := AuthFromParams(params); auth != nil {
		if err := auth.AuthorizeChatAccess(chatID); err != nil {
			return err.Error(), nil
		}
		if err := t.deliverer.EnforceChannelPolicy(auth.CallerChatID, chatID); err != nil {
			return err.Error(), nil
		}
	}

	if err := t.deliverer.DeliverToContact(ctx, chatID, message); err != nil {
		return fmt.Sprintf("Error sending message: %v", err), nil
	}
	return fmt.Sprintf("Message sent to chat %d", chatID), nil
}
