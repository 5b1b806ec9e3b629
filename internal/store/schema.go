package store

import "time"

// Schema is applied on open. Statements are idempotent so reopening an
// existing database is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS chats (
	chat_id INTEGER PRIMARY KEY,
	chat_title TEXT,
	chat_type TEXT NOT NULL DEFAULT 'private',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS personas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT 'default',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(chat_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id INTEGER NOT NULL,
	persona_id INTEGER NOT NULL DEFAULT 0,
	sender_name TEXT NOT NULL,
	content TEXT NOT NULL,
	is_from_bot BOOLEAN NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, timestamp);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	prompt TEXT NOT NULL,
	schedule_type TEXT NOT NULL,
	schedule_value TEXT NOT NULL,
	next_run DATETIME,
	last_run DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_next_run ON scheduled_tasks(next_run);

CREATE TABLE IF NOT EXISTS task_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id INTEGER NOT NULL,
	chat_id INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	success BOOLEAN NOT NULL,
	result_summary TEXT
);
CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task_id);

CREATE TABLE IF NOT EXISTS channel_bindings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_chat_id INTEGER NOT NULL,
	channel_type TEXT NOT NULL,
	channel_handle TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(canonical_chat_id, channel_type, channel_handle)
);
CREATE INDEX IF NOT EXISTS idx_bindings_contact ON channel_bindings(canonical_chat_id);

CREATE TABLE IF NOT EXISTS social_tokens (
	provider TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT,
	expires_at DATETIME,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// StoredMessage is one message in a chat's history.
type StoredMessage struct {
	ID         string    `json:"id"`
	ChatID     int64     `json:"chat_id"`
	PersonaID  int64     `json:"persona_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	IsFromBot  bool      `json:"is_from_bot"`
	Timestamp  time.Time `json:"timestamp"`
}

// ScheduledTask is a recurring or one-shot agent invocation.
type ScheduledTask struct {
	ID            int64      `json:"id"`
	ChatID        int64      `json:"chat_id"`
	Prompt        string     `json:"prompt"`
	ScheduleType  string     `json:"schedule_type"` // "cron" or "once"
	ScheduleValue string     `json:"schedule_value"`
	NextRun       *time.Time `json:"next_run,omitempty"`
	LastRun       *time.Time `json:"last_run,omitempty"`
}

// TaskRun is one append-only execution log row.
type TaskRun struct {
	TaskID        int64     `json:"task_id"`
	ChatID        int64     `json:"chat_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMS    int64     `json:"duration_ms"`
	Success       bool      `json:"success"`
	ResultSummary string    `json:"result_summary,omitempty"`
}

// ChannelBinding maps a canonical contact to one concrete transport address.
type ChannelBinding struct {
	CanonicalChatID int64  `json:"canonical_chat_id"`
	ChannelType     string `json:"channel_type"` // "telegram", "discord", "slack", "whatsapp", "web"
	ChannelHandle   string `json:"channel_handle"`
}

// ChatSummary is a chat row with its most recent message, for listings.
type ChatSummary struct {
	ChatID             int64  `json:"chat_id"`
	ChatTitle          string `json:"chat_title,omitempty"`
	ChatType           string `json:"chat_type"`
	LastMessageTime    string `json:"last_message_time"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}

// SocialToken is a persisted OAuth token for a social provider.
// Token exchange happens elsewhere; this is storage only.
type SocialToken struct {
	Provider     string     `json:"provider"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}
