package delivery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// telegramClient is the slice of the bot API delivery needs.
type telegramClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSender delivers text over the Telegram Bot API in HTML parse
// mode. Handles are numeric chat IDs.
type TelegramSender struct {
	client telegramClient
}

// NewTelegramSender wraps a bot instance.
func NewTelegramSender(b *bot.Bot) *TelegramSender {
	return &TelegramSender{client: b}
}

func (s *TelegramSender) SendText(ctx context.Context, handle string, text string) error {
	chatID, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", handle, err)
	}
	_, err = s.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}
