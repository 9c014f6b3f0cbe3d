package storage

import (
	"fmt"
	"time"
)

// EventType classifies a recorded clipboard event.
type EventType string

const (
	EventCapture  EventType = "capture"
	EventPromote  EventType = "promote"
	EventSuppress EventType = "suppress"
	EventCopy     EventType = "copy"
)

// timeLayout matches SQLite's datetime() output so DATE() and comparisons
// against datetime('now', ...) work on stored values.
const timeLayout = "2006-01-02 15:04:05"

// Event is a single clipboard activity record
type Event struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Kind        string    `json:"kind"`
	ContentHash string    `json:"contentHash"`
	SizeBytes   int64     `json:"sizeBytes"`
}

// SaveEvent saves an event. A zero Timestamp is set to now.
func (db *DB) SaveEvent(e *Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	result, err := db.conn.Exec(
		`INSERT INTO events (timestamp, event_type, kind, content_hash, size_bytes) VALUES (?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(timeLayout), string(e.Type), e.Kind, e.ContentHash, e.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	e.ID = id
	return nil
}

// GetEvents retrieves events newest first with pagination
func (db *DB) GetEvents(limit, offset int) ([]Event, error) {
	rows, err := db.conn.Query(`
		SELECT id, timestamp, event_type, kind, content_hash, size_bytes
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts, typ string
		if err := rows.Scan(&e.ID, &ts, &typ, &e.Kind, &e.ContentHash, &e.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = EventType(typ)
		e.Timestamp, err = parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// PruneBefore deletes events older than t and returns how many were removed
func (db *DB) PruneBefore(t time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM events WHERE timestamp < ?`, t.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return result.RowsAffected()
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse event timestamp %q", s)
}
