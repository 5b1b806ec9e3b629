// Package channels implements the chat platform listeners (Telegram,
// Discord, WhatsApp) that feed the message bus.
package channels

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/FerryClaw/FerryClaw/internal/bus"
)

// Channel defines the interface for chat platforms (Telegram, WhatsApp, etc).
type Channel interface {
	// Name returns the channel name (e.g. "telegram").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a message to a specific chat.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}

// CanonicalChatID maps a channel-native chat handle to the stable id
// used across the store. Telegram chat ids are already int64 and pass
// through unchanged; other handles hash to a positive id.
func CanonicalChatID(channel, handle string) int64 {
	if channel == "telegram" {
		if id, err := strconv.ParseInt(handle, 10, 64); err == nil {
			return id
		}
	}
	h := fnv.New64a()
	h.Write([]byte(channel + ":" + handle))
	return int64(h.Sum64() & 0x3FFF_FFFF_FFFF_FFFF)
}

// SenderAllowed checks a sender handle against a channel allowlist.
// An empty allowlist admits everyone.
func SenderAllowed(allowFrom []string, handle string) bool {
	if len(allowFrom) == 0 {
		return true
	}
	for _, allowed := range allowFrom {
		if allowed == handle {
			return true
		}
	}
	return false
}
