// Package delivery persists outgoing bot replies and pushes them to the
// chat platforms a contact is bound to. Storage is the source of truth:
// a reply is written exactly once against the canonical chat, network
// delivery is best effort per channel.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FerryClaw/FerryClaw/internal/store"
)

// Sender pushes text to one chat platform. Implementations wrap the
// platform SDK behind this narrow surface so delivery logic stays
// testable without network.
type Sender interface {
	// SendText delivers formatted text to the platform-native handle.
	SendText(ctx context.Context, handle string, text string) error
}

// PermissionError is a cross-chat policy violation, surfaced verbatim to
// the caller as a user-visible denial.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

// Deliverer stores replies and fans them out over registered senders.
type Deliverer struct {
	store       *store.Store
	senders     map[string]Sender
	botUsername string
	logger      *slog.Logger
}

// New creates a Deliverer with no senders registered.
func New(st *store.Store, botUsername string, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		store:       st,
		senders:     make(map[string]Sender),
		botUsername: botUsername,
		logger:      logger,
	}
}

// Register attaches a sender for a channel type ("telegram", "discord", ...).
func (d *Deliverer) Register(channelType string, s Sender) {
	d.senders[channelType] = s
}

// IsWebChat reports whether the chat is a browser surface.
func (d *Deliverer) IsWebChat(chatID int64) bool {
	t, err := d.store.GetChatType(chatID)
	return err == nil && t == "web"
}

// EnforceChannelPolicy rejects web callers operating on chats other than
// their own. Non-web callers are unrestricted here.
func (d *Deliverer) EnforceChannelPolicy(callerChatID, targetChatID int64) error {
	if d.IsWebChat(callerChatID) && callerChatID != targetChatID {
		return &PermissionError{Message: "Permission denied: web chats cannot operate on other chats"}
	}
	return nil
}

// SendAndStore delivers text to a single chat and persists it. Web chats
// are persist-only. A terminal platform failure (chat deleted, user
// deactivated) still persists the row and counts as success; any other
// send failure is returned without persisting so the caller may retry.
func (d *Deliverer) SendAndStore(ctx context.Context, chatID int64, text string) error {
	chatType, err := d.store.GetChatType(chatID)
	if err != nil {
		// Chats without a stored row keep the original numeric-id scheme.
		chatType = "telegram"
	}
	if chatType == "web" {
		return d.storeBotMessage(chatID, text)
	}

	handle, err := d.resolveHandle(chatID, chatType)
	if err != nil {
		return err
	}
	if err := d.sendOn(ctx, chatType, handle, text); err != nil {
		if isTerminalSendError(chatType, err) {
			// Chat may have been deleted or the bot removed; keep history
			// intact so other surfaces can still show the reply.
			d.logger.Warn("delivery failed, chat unavailable; storing message anyway",
				"chat_id", chatID, "channel", chatType, "error", err)
			return d.storeBotMessage(chatID, text)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}
	return d.storeBotMessage(chatID, text)
}

// resolveHandle finds the platform-native address for a chat on its own
// channel. Telegram ids double as handles; everything else needs a
// recorded binding.
func (d *Deliverer) resolveHandle(chatID int64, chatType string) (string, error) {
	bindings, err := d.store.ListBindingsForContact(chatID)
	if err != nil {
		return "", fmt.Errorf("list bindings: %w", err)
	}
	for _, b := range bindings {
		if b.ChannelType == chatType {
			return b.ChannelHandle, nil
		}
	}
	if chatType == "telegram" {
		return fmt.Sprintf("%d", chatID), nil
	}
	return "", fmt.Errorf("no %s binding for chat %d", chatType, chatID)
}

// DeliverToContact persists the reply once under the canonical chat, then
// attempts delivery on every bound channel. Channel failures are logged
// and independent; the stored row is the guarantee.
func (d *Deliverer) DeliverToContact(ctx context.Context, canonicalChatID int64, text string) error {
	if err := d.storeBotMessage(canonicalChatID, text); err != nil {
		return err
	}

	bindings, err := d.store.ListBindingsForContact(canonicalChatID)
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}

	for _, binding := range bindings {
		if err := d.sendToBinding(ctx, binding, text); err != nil {
			d.logger.Warn("channel delivery failed",
				"canonical_chat_id", canonicalChatID,
				"channel", binding.ChannelType,
				"handle", binding.ChannelHandle,
				"error", err)
		}
	}
	return nil
}

func (d *Deliverer) sendToBinding(ctx context.Context, binding store.ChannelBinding, text string) error {
	if binding.ChannelType == "web" {
		// Already stored; web clients read history or the live stream.
		return nil
	}
	if err := d.sendOn(ctx, binding.ChannelType, binding.ChannelHandle, text); err != nil {
		if isTerminalSendError(binding.ChannelType, err) {
			d.logger.Warn("chat unavailable on its platform",
				"channel", binding.ChannelType, "handle", binding.ChannelHandle, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// sendOn pushes text on one channel type with its platform formatting:
// Telegram gets HTML, Discord gets length-capped chunks, the rest go as
// plain text.
func (d *Deliverer) sendOn(ctx context.Context, channelType, handle, text string) error {
	sender, ok := d.senders[channelType]
	if !ok {
		return fmt.Errorf("no %s sender registered", channelType)
	}
	switch channelType {
	case "telegram":
		return sender.SendText(ctx, handle, MarkdownToTelegramHTML(text))
	case "discord":
		for _, chunk := range ChunkText(text, discordMaxMessageLen) {
			if err := sender.SendText(ctx, handle, chunk); err != nil {
				return err
			}
		}
		return nil
	default:
		return sender.SendText(ctx, handle, text)
	}
}

// isTerminalSendError applies the per-platform classifier for channels
// that expose unrecoverable chat states.
func isTerminalSendError(channelType string, err error) bool {
	switch channelType {
	case "telegram":
		return IsTerminalTelegramError(err)
	case "discord":
		return IsTerminalDiscordError(err)
	default:
		return false
	}
}

func (d *Deliverer) storeBotMessage(chatID int64, text string) error {
	personaID, err := d.store.GetOrCreateDefaultPersona(chatID)
	if err != nil {
		return fmt.Errorf("resolve persona: %w", err)
	}
	msg := &store.StoredMessage{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		PersonaID:  personaID,
		SenderName: d.botUsername,
		Content:    text,
		IsFromBot:  true,
		Timestamp:  time.Now().UTC(),
	}
	if err := d.store.StoreMessage(msg); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}
