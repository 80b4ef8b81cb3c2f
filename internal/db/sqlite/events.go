package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// StoredEvent is one row of hook_events.
type StoredEvent struct {
	ID        int64
	EventName string
	SessionID string
	CWD       string
	Payload   map[string]any
	CreatedAt time.Time
}

// EventStore reads and writes hook event history.
type EventStore struct {
	store *Store
}

// NewEventStore wraps store.
func NewEventStore(store *Store) *EventStore {
	return &EventStore{store: store}
}

// Insert stores one event and returns its row id.
func (s *EventStore) Insert(ctx context.Context, eventName, sessionID, cwd string, payload map[string]any, at time.Time) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	res, err := s.store.exec(ctx,
		`INSERT INTO hook_events (event_name, session_id, cwd, payload, created_at, created_at_epoch)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventName, nullString(sessionID), nullString(cwd), string(data),
		at.UTC().Format(time.RFC3339Nano), at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the last limit events, oldest first. An empty eventName
// matches every event.
func (s *EventStore) Recent(ctx context.Context, eventName string, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.store.query(ctx,
		`SELECT id, event_name, COALESCE(session_id, ''), COALESCE(cwd, ''), payload, created_at_epoch
		 FROM hook_events
		 WHERE ? = '' OR event_name = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		eventName, eventName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var (
			ev      StoredEvent
			payload string
			epoch   int64
		)
		if err := rows.Scan(&ev.ID, &ev.EventName, &ev.SessionID, &ev.CWD, &payload, &epoch); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", ev.ID, err)
		}
		ev.CreatedAt = time.UnixMilli(epoch)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Count returns the number of stored events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	n, err := s.store.queryInt(ctx, "SELECT COUNT(*) FROM hook_events")
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Prune keeps the newest keep events and deletes the rest.
func (s *EventStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.store.exec(ctx,
		`DELETE FROM hook_events WHERE id NOT IN (
			SELECT id FROM hook_events ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying store.
func (s *EventStore) Close() error {
	return s.store.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
