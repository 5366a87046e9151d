// Package audit records facility state changes and processed SMS commands.
//
// Audit failures are reported to the caller but must never abort the
// user-visible dialogue flow; callers log and continue.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sierra-tahoe/smsops/common/trace"
	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/store"
)

// SourceTag returns the audit source identifier for a change applied via a
// provider's inbound SMS, e.g. "sms:telnyx".
func SourceTag(provider string) string {
	return "sms:" + provider
}

// UndoSourceTag returns the audit source identifier for a change applied by
// the undo flow, e.g. "sms:telnyx:undo".
func UndoSourceTag(provider string) string {
	return "sms:" + provider + ":undo"
}

// Entry is one facility state change.
type Entry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	FacilityID   int64
	FacilityType catalog.Type
	FieldChanged string
	OldValue     string
	NewValue     string
	UserID       int64
	Source       string
}

// Message is one processed inbound SMS command and its reply.
type Message struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	MessageID string
	Sender    string // digits only
	UserID    int64  // 0 when the sender was unknown
	Provider  string
	Text      string
	Reply     string
}

// Log writes audit and message-log entries to the application database.
type Log struct {
	db *store.Store
}

// New creates an audit Log backed by the given database.
func New(db *store.Store) *Log {
	return &Log{db: db}
}

// Record writes one facility change entry. The trace ID is taken from ctx.
func (l *Log) Record(ctx context.Context, e Entry) error {
	_, err := l.db.DB().ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, facility_id, facility_type, field_changed, old_value, new_value, user_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now(), trace.FromContext(ctx), e.FacilityID, string(e.FacilityType),
		e.FieldChanged, e.OldValue, e.NewValue, e.UserID, e.Source)
	if err != nil {
		return fmt.Errorf("audit: record change: %w", err)
	}
	return nil
}

// Recent returns the most recent audit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.DB().QueryContext(ctx, `
		SELECT id, ts, trace_id, facility_id, facility_type, field_changed, old_value, new_value, user_id, source
		FROM audit_log
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.FacilityID, &e.FacilityType,
			&e.FieldChanged, &e.OldValue, &e.NewValue, &e.UserID, &e.Source); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return entries, nil
}

// LogMessage writes one processed-command entry to the message log.
func (l *Log) LogMessage(ctx context.Context, m Message) error {
	var userID sql.NullInt64
	if m.UserID != 0 {
		userID = sql.NullInt64{Int64: m.UserID, Valid: true}
	}
	_, err := l.db.DB().ExecContext(ctx, `
		INSERT INTO message_log (ts, trace_id, message_id, sender, user_id, provider, message, reply)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now(), trace.FromContext(ctx), m.MessageID, m.Sender, userID, m.Provider, m.Text, m.Reply)
	if err != nil {
		return fmt.Errorf("audit: log message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent message-log entries, newest first.
func (l *Log) RecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.DB().QueryContext(ctx, `
		SELECT id, ts, trace_id, message_id, sender, user_id, provider, message, reply
		FROM message_log
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var userID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.TraceID, &m.MessageID, &m.Sender,
			&userID, &m.Provider, &m.Text, &m.Reply); err != nil {
			return nil, fmt.Errorf("audit: scan message: %w", err)
		}
		if userID.Valid {
			m.UserID = userID.Int64
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate messages: %w", err)
	}
	return messages, nil
}

// MessageCount returns the total number of processed messages.
func (l *Log) MessageCount(ctx context.Context) (int, error) {
	var n int
	err := l.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM message_log`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit: message count: %w", err)
	}
	return n, nil
}
