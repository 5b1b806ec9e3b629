package delivery

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// whatsappClient is the slice of the whatsmeow client delivery needs.
type whatsappClient interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// WhatsAppSender delivers text over a paired WhatsApp session. Handles
// are JIDs.
type WhatsAppSender struct {
	client whatsappClient
}

// NewWhatsAppSender wraps a connected client.
func NewWhatsAppSender(c *whatsmeow.Client) *WhatsAppSender {
	return &WhatsAppSender{client: c}
}

func (s *WhatsAppSender) SendText(ctx context.Context, handle string, text string) error {
	jid, err := types.ParseJID(handle)
	if err != nil {
		return fmt.Errorf("invalid whatsapp jid %q: %w", handle, err)
	}
	_, err = s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}
