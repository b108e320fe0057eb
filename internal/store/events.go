// ABOUTME: Ledger event store mirroring each session's conversation history
// ABOUTME: Events are ordered by a per-session sequence number

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventDirection indicates whether an event is inbound (to agent) or outbound (from agent)
type EventDirection string

const (
	EventDirectionInbound  EventDirection = "inbound_to_agent"
	EventDirectionOutbound EventDirection = "outbound_from_agent"
)

// EventType categorizes the kind of event
type EventType string

const (
	EventTypeMessage    EventType = "message"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
)

// LedgerEvent is one mirrored history entry.
type LedgerEvent struct {
	ID         string
	SessionID  string
	Seq        int // position in the session history
	Direction  EventDirection
	Author     string // user DID, agent DID, or tool name
	Timestamp  time.Time
	Type       EventType
	Text       *string
	ToolName   *string
	ToolCallID *string
}

// SaveEvents persists events atomically. IDs and timestamps are filled in
// when missing.
func (s *SQLiteStore) SaveEvents(ctx context.Context, events []*LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_events (
			event_id, session_id, seq, direction, author, timestamp, type, text, tool_name, tool_call_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.SessionID, e.Seq, string(e.Direction), e.Author,
			e.Timestamp.UTC().Format(timeFormat), string(e.Type), e.Text, e.ToolName, e.ToolCallID,
		); err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing events: %w", err)
	}

	s.logger.Debug("saved ledger events", "session_id", events[0].SessionID, "count", len(events))
	return nil
}

// ListEventsBySession returns a session's events in history order.
// A non-positive limit returns everything.
func (s *SQLiteStore) ListEventsBySession(ctx context.Context, sessionID string, limit int) ([]*LedgerEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, session_id, seq, direction, author, timestamp, type, text, tool_name, tool_call_id
		FROM ledger_events
		WHERE session_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*LedgerEvent
	for rows.Next() {
		var e LedgerEvent
		var direction, eventType, ts string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &direction, &e.Author, &ts, &eventType,
			&e.Text, &e.ToolName, &e.ToolCallID); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Direction = EventDirection(direction)
		e.Type = EventType(eventType)
		if e.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
