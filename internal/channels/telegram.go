package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/FerryClaw/FerryClaw/internal/bus"
	"github.com/FerryClaw/FerryClaw/internal/delivery"
)

// TelegramChannel listens for Telegram updates over long polling.
type TelegramChannel struct {
	BaseChannel
	token  string
	bot    *bot.Bot
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewTelegramChannel creates a Telegram channel listener.
func NewTelegramChannel(token string, messageBus *bus.MessageBus, logger *slog.Logger) *TelegramChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		token:       token,
		logger:      logger.With("channel", "telegram"),
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Bot returns the underlying client, nil until Start succeeds.
func (c *TelegramChannel) Bot() *bot.Bot { return c.bot }

func (c *TelegramChannel) Start(ctx context.Context) error {
	b, err := bot.New(c.token, bot.WithDefaultHandler(c.handleUpdate))
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	c.bot = b

	ctx, c.cancel = context.WithCancel(ctx)
	go b.Start(ctx)

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			c.logger.Error("outbound send failed", "chat", msg.ChatHandle, "error", err)
		}
	})

	c.logger.Info("telegram channel started")
	return nil
}

func (c *TelegramChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.bot == nil {
		return fmt.Errorf("telegram: not started")
	}
	chatID, err := strconv.ParseInt(msg.ChatHandle, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat handle %q: %w", msg.ChatHandle, err)
	}
	_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      delivery.MarkdownToTelegramHTML(msg.Content),
		ParseMode: models.ParseModeHTML,
	})
	return err
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	m := update.Message
	sender := "user"
	senderHandle := ""
	if m.From != nil {
		senderHandle = strconv.FormatInt(m.From.ID, 10)
		switch {
		case m.From.Username != "":
			sender = m.From.Username
		case m.From.FirstName != "":
			sender = m.From.FirstName
		}
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:      c.Name(),
		SenderName:   sender,
		SenderHandle: senderHandle,
		ChatHandle:   strconv.FormatInt(m.Chat.ID, 10),
		ChatTitle:    chatTitle(&m.Chat),
		Content:      m.Text,
	})
}

func chatTitle(chat *models.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.Username != "" {
		return chat.Username
	}
	return chat.FirstName
}
