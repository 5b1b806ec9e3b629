package delivery

import "strings"

// Terminal errors mean the target chat can never receive this message
// (deleted chat, deactivated user). The platforms only expose these as
// error text, so classification is substring matching kept in one place
// per platform.

var telegramTerminalSubstrings = []string{
	"chat not found",
	"Chat not found",
	"user is deactivated",
}

// IsTerminalTelegramError reports whether a Telegram send error is
// unrecoverable for the target chat.
func IsTerminalTelegramError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range telegramTerminalSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var discordTerminalSubstrings = []string{
	"Unknown Channel",
	"Missing Access",
}

// IsTerminalDiscordError reports whether a Discord send error is
// unrecoverable for the target channel.
func IsTerminalDiscordError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range discordTerminalSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
