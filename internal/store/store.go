// Package store provides the sqlite-backed persistence layer: chats,
// messages, scheduled tasks, task run logs, channel bindings and social
// tokens.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database. Methods are safe for concurrent use;
// sqlite serializes writers and the busy timeout absorbs contention.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Chats & personas
// ---------------------------------------------------------------------------

// UpsertChat records a chat with its title and type. Existing rows keep
// their id; title and type are refreshed.
func (s *Store) UpsertChat(chatID int64, title, chatType string) error {
	_, err := s.db.Exec(`INSERT INTO chats (chat_id, chat_title, chat_type) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET chat_title = excluded.chat_title, chat_type = excluded.chat_type`,
		chatID, title, chatType)
	return err
}

// GetChatType returns the chat type, or "" when the chat is unknown.
func (s *Store) GetChatType(chatID int64) (string, error) {
	var t string
	err := s.db.QueryRow(`SELECT chat_type FROM chats WHERE chat_id = ?`, chatID).Scan(&t)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return t, nil
}

// GetChatsByType lists chats of one type, most recently active first.
func (s *Store) GetChatsByType(chatType string, limit int) ([]ChatSummary, error) {
	rows, err := s.db.Query(`
		SELECT c.chat_id, COALESCE(c.chat_title, ''), c.chat_type,
			COALESCE(MAX(m.timestamp), c.created_at),
			COALESCE((SELECT content FROM messages WHERE chat_id = c.chat_id ORDER BY timestamp DESC LIMIT 1), '')
		FROM chats c LEFT JOIN messages m ON m.chat_id = c.chat_id
		WHERE c.chat_type = ?
		GROUP BY c.chat_id
		ORDER BY 4 DESC
		LIMIT ?`, chatType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.ChatID, &c.ChatTitle, &c.ChatType, &c.LastMessageTime, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetOrCreateDefaultPersona returns the default persona id for a chat,
// creating it on first use.
func (s *Store) GetOrCreateDefaultPersona(chatID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM personas WHERE chat_id = ? AND name = 'default'`, chatID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := s.db.Exec(`INSERT INTO personas (chat_id, name) VALUES (?, 'default')`, chatID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// StoreMessage appends a message to a chat's history.
func (s *Store) StoreMessage(m *StoredMessage) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, chat_id, persona_id, sender_name, content, is_from_bot, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.PersonaID, m.SenderName, m.Content, m.IsFromBot, m.Timestamp.UTC())
	return err
}

// GetRecentMessages returns the last n messages of a chat in chronological
// order.
func (s *Store) GetRecentMessages(chatID int64, n int) ([]StoredMessage, error) {
	rows, err := s.db.Query(`SELECT id, chat_id, persona_id, sender_name, content, is_from_bot, timestamp
		FROM messages WHERE chat_id = ?
		ORDER BY timestamp DESC LIMIT ?`, chatID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.PersonaID, &m.SenderName, &m.Content, &m.IsFromBot, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SearchMessages finds messages in a chat whose content matches the query,
// newest first.
func (s *Store) SearchMessages(chatID int64, query string, limit int) ([]StoredMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, chat_id, persona_id, sender_name, content, is_from_bot, timestamp
		FROM messages WHERE chat_id = ? AND content LIKE ?
		ORDER BY timestamp DESC LIMIT ?`, chatID, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.PersonaID, &m.SenderName, &m.Content, &m.IsFromBot, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMessages returns the number of stored messages for a chat.
func (s *Store) CountMessages(chatID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&n)
	return n, err
}

// DeleteSession removes a chat's messages and returns how many were deleted.
func (s *Store) DeleteSession(chatID int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Scheduled tasks & run log
// ---------------------------------------------------------------------------

// CreateScheduledTask registers a task and returns its id.
func (s *Store) CreateScheduledTask(t *ScheduledTask) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO scheduled_tasks (chat_id, prompt, schedule_type, schedule_value, next_run)
		VALUES (?, ?, ?, ?, ?)`,
		t.ChatID, t.Prompt, t.ScheduleType, t.ScheduleValue, nullableTime(t.NextRun))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDueTasks returns every task whose next_run is at or before now.
func (s *Store) GetDueTasks(now time.Time) ([]ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, chat_id, prompt, schedule_type, schedule_value, next_run, last_run
		FROM scheduled_tasks WHERE next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListScheduledTasks returns every registered task.
func (s *Store) ListScheduledTasks() ([]ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, chat_id, prompt, schedule_type, schedule_value, next_run, last_run
		FROM scheduled_tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// DeleteScheduledTask removes a task by id.
func (s *Store) DeleteScheduledTask(id int64) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	return err
}

// UpdateTaskAfterRun records the execution time and the recomputed next run.
// A nil nextRun clears the schedule (one-shot tasks are never due again).
func (s *Store) UpdateTaskAfterRun(id int64, lastRun time.Time, nextRun *time.Time) error {
	_, err := s.db.Exec(`UPDATE scheduled_tasks SET last_run = ?, next_run = ? WHERE id = ?`,
		lastRun.UTC(), nullableTime(nextRun), id)
	return err
}

// LogTaskRun appends one execution log row.
func (s *Store) LogTaskRun(r *TaskRun) error {
	_, err := s.db.Exec(`INSERT INTO task_runs (task_id, chat_id, started_at, finished_at, duration_ms, success, result_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.ChatID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.DurationMS, r.Success, r.ResultSummary)
	return err
}

// ListTaskRuns returns the most recent run log rows for a task.
func (s *Store) ListTaskRuns(taskID int64, limit int) ([]TaskRun, error) {
	rows, err := s.db.Query(`SELECT task_id, chat_id, started_at, finished_at, duration_ms, success, COALESCE(result_summary, '')
		FROM task_runs WHERE task_id = ? ORDER BY started_at DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRun
	for rows.Next() {
		var r TaskRun
		if err := rows.Scan(&r.TaskID, &r.ChatID, &r.StartedAt, &r.FinishedAt, &r.DurationMS, &r.Success, &r.ResultSummary); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTasks(rows *sql.Rows) ([]ScheduledTask, error) {
	var out []ScheduledTask
	for rows.Next() {
		var t ScheduledTask
		var next, last sql.NullTime
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Prompt, &t.ScheduleType, &t.ScheduleValue, &next, &last); err != nil {
			return nil, err
		}
		if next.Valid {
			v := next.Time
			t.NextRun = &v
		}
		if last.Valid {
			v := last.Time
			t.LastRun = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Channel bindings
// ---------------------------------------------------------------------------

// UpsertChannelBinding records that a canonical contact is reachable on a
// channel. Duplicate bindings are ignored.
func (s *Store) UpsertChannelBinding(b *ChannelBinding) error {
	_, err := s.db.Exec(`INSERT INTO channel_bindings (canonical_chat_id, channel_type, channel_handle)
		VALUES (?, ?, ?)
		ON CONFLICT(canonical_chat_id, channel_type, channel_handle) DO NOTHING`,
		b.CanonicalChatID, b.ChannelType, b.ChannelHandle)
	return err
}

// ListBindingsForContact returns every binding of a canonical contact.
func (s *Store) ListBindingsForContact(canonicalChatID int64) ([]ChannelBinding, error) {
	rows, err := s.db.Query(`SELECT canonical_chat_id, channel_type, channel_handle
		FROM channel_bindings WHERE canonical_chat_id = ? ORDER BY id`, canonicalChatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelBinding
	for rows.Next() {
		var b ChannelBinding
		if err := rows.Scan(&b.CanonicalChatID, &b.ChannelType, &b.ChannelHandle); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Social tokens
// ---------------------------------------------------------------------------

// SaveSocialToken stores or replaces the token for a provider.
func (s *Store) SaveSocialToken(t *SocialToken) error {
	_, err := s.db.Exec(`INSERT INTO social_tokens (provider, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider) DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token, expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		t.Provider, t.AccessToken, t.RefreshToken, nullableTime(t.ExpiresAt))
	return err
}

// GetSocialToken returns the stored token for a provider, or nil if absent.
func (s *Store) GetSocialToken(provider string) (*SocialToken, error) {
	var t SocialToken
	var refresh sql.NullString
	var expires sql.NullTime
	err := s.db.QueryRow(`SELECT provider, access_token, refresh_token, expires_at FROM social_tokens WHERE provider = ?`,
		provider).Scan(&t.Provider, &t.AccessToken, &refresh, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.RefreshToken = refresh.String
	if expires.Valid {
		v := expires.Time
		t.ExpiresAt = &v
	}
	return &t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
