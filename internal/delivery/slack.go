package delivery

import (
	"context"

	"github.com/slack-go/slack"
)

// slackClient is the slice of the Slack API delivery needs.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackSender delivers text to a Slack channel. Handles are channel IDs.
type SlackSender struct {
	client slackClient
}

// NewSlackSender wraps an API client.
func NewSlackSender(c *slack.Client) *SlackSender {
	return &SlackSender{client: c}
}

func (s *SlackSender) SendText(ctx context.Context, handle string, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, handle,
		slack.MsgOptionText(text, false))
	return err
}
