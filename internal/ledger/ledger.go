// Package ledger provides an append-only history of color sync events.
// It is an audit trail: the color is never restored from it.
package ledger

import (
	"database/sql"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventInitialized  EventType = "initialized"
	EventRemoteChange EventType = "remote_change"
	EventUserEdit     EventType = "user_edit"
	EventWriteOK      EventType = "cloud_write_ok"
	EventWriteFailed  EventType = "cloud_write_failed"
	EventReadFailed   EventType = "cloud_read_failed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	EventType EventType
	Timestamp time.Time
	Color     string // "#rrggbb", empty when the event carries no color
	EditID    string // links a user edit to its write result
	Error     string
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err := l.db.Exec(`
		INSERT INTO sync_ledger (event_type, timestamp, color, edit_id, error)
		VALUES (?, ?, ?, ?, ?)
	`, string(e.EventType), ts.UTC().UnixMilli(), e.Color, e.EditID, e.Error)

	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, color, edit_id, error
		FROM sync_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, color, edit_id, error
		FROM sync_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByEdit returns all entries for one user edit, oldest first
func (l *Ledger) ByEdit(editID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, color, edit_id, error
		FROM sync_ledger
		WHERE edit_id = ?
		ORDER BY id ASC
	`, editID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM sync_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var colorStr, editID, errStr sql.NullString
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &colorStr, &editID, &errStr)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Color = colorStr.String
		entry.EditID = editID.String
		entry.Error = errStr.String

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
