package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skip2/go-qrcode"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/FerryClaw/FerryClaw/internal/bus"
)

// WhatsAppChannel implements a native WhatsApp client via whatsmeow.
// First start without a stored session writes a login QR code PNG under
// the data directory.
type WhatsAppChannel struct {
	BaseChannel
	dataDir   string
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *slog.Logger
}

// NewWhatsAppChannel creates a WhatsApp channel listener. dataDir holds
// the session database and the pairing QR image.
func NewWhatsAppChannel(dataDir string, messageBus *bus.MessageBus, logger *slog.Logger) *WhatsAppChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		dataDir:     dataDir,
		logger:      logger.With("channel", "whatsapp"),
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// Client returns the underlying client, nil until Start succeeds.
func (c *WhatsAppChannel) Client() *whatsmeow.Client { return c.client }

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return fmt.Errorf("whatsapp: create data dir: %w", err)
	}
	dbPath := filepath.Join(c.dataDir, "whatsapp.db")
	dbLog := waLog.Stdout("Database", "WARN", true)
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("whatsapp: init session db: %w", err)
	}
	c.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: get device: %w", err)
	}
	c.client = whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true))
	c.client.AddEventHandler(c.handleEvent)

	if c.client.Store.ID == nil {
		qrChan, _ := c.client.GetQRChannel(ctx)
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		go c.awaitPairing(ctx, qrChan)
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		c.logger.Info("whatsapp connected")
	}

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			c.logger.Error("outbound send failed", "chat", msg.ChatHandle, "error", err)
		}
	})

	return nil
}

func (c *WhatsAppChannel) awaitPairing(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	qrPath := filepath.Join(c.dataDir, "whatsapp-qr.png")
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			if evt.Event == "code" {
				if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err != nil {
					c.logger.Error("write qr image failed", "error", err)
					continue
				}
				c.logger.Info("scan QR code to pair whatsapp", "path", qrPath)
			} else {
				c.logger.Info("whatsapp login event", "event", evt.Event)
			}
		}
	}
}

func (c *WhatsAppChannel) Stop() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("whatsapp: not started")
	}
	jid, err := types.ParseJID(msg.ChatHandle)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid JID %q: %w", msg.ChatHandle, err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(msg.Content),
	})
	return err
}

func (c *WhatsAppChannel) handleEvent(evt any) {
	v, ok := evt.(*events.Message)
	if !ok {
		return
	}
	if v.Info.IsFromMe || v.Info.Chat.Server == "broadcast" {
		return
	}
	content := extractText(v)
	if content == "" {
		return
	}
	sender := v.Info.PushName
	if sender == "" {
		sender = v.Info.Sender.User
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:      c.Name(),
		SenderName:   sender,
		SenderHandle: v.Info.Sender.User,
		ChatHandle:   v.Info.Chat.String(),
		Content:      content,
		Timestamp:    v.Info.Timestamp,
	})
}

// extractText pulls the plain text body out of the message variants that
// carry one. Media-only messages yield an empty string and are skipped.
func extractText(v *events.Message) string {
	if t := v.Message.GetConversation(); t != "" {
		return t
	}
	if t := v.Message.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if img := v.Message.GetImageMessage(); img != nil && img.GetCaption() != "" {
		return img.GetCaption()
	}
	return ""
}
