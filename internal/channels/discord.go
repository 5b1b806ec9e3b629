package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/FerryClaw/FerryClaw/internal/bus"
	"github.com/FerryClaw/FerryClaw/internal/delivery"
)

// DiscordChannel listens for Discord messages over the gateway websocket.
type DiscordChannel struct {
	BaseChannel
	token   string
	session *discordgo.Session
	logger  *slog.Logger
}

// NewDiscordChannel creates a Discord channel listener.
func NewDiscordChannel(token string, messageBus *bus.MessageBus, logger *slog.Logger) *DiscordChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		token:       token,
		logger:      logger.With("channel", "discord"),
	}
}

func (c *DiscordChannel) Name() string { return "discord" }

// Session returns the underlying session, nil until Start succeeds.
func (c *DiscordChannel) Session() *discordgo.Session { return c.session }

func (c *DiscordChannel) Start(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessageCreate(m)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord: connect: %w", err)
	}
	c.session = dg

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			c.logger.Error("outbound send failed", "chat", msg.ChatHandle, "error", err)
		}
	})

	c.logger.Info("discord channel started")
	return nil
}

func (c *DiscordChannel) Stop() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *DiscordChannel) Send(_ context.Context, msg *bus.OutboundMessage) error {
	if c.session == nil {
		return fmt.Errorf("discord: not started")
	}
	for _, chunk := range delivery.ChunkText(msg.Content, 2000) {
		if _, err := c.session.ChannelMessageSend(msg.ChatHandle, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscordChannel) handleMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:      c.Name(),
		SenderName:   m.Author.Username,
		SenderHandle: m.Author.ID,
		ChatHandle:   m.ChannelID,
		Content:      m.Content,
	})
}
