package delivery

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// discordClient is the slice of the session API delivery needs.
type discordClient interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender delivers text to a Discord channel. Handles are channel
// IDs; chunking to the platform limit happens in the deliverer.
type DiscordSender struct {
	session discordClient
}

// NewDiscordSender wraps an open session.
func NewDiscordSender(s *discordgo.Session) *DiscordSender {
	return &DiscordSender{session: s}
}

func (s *DiscordSender) SendText(_ context.Context, handle string, text string) error {
	_, err := s.session.ChannelMessageSend(handle, text)
	return err
}
