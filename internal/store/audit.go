// ABOUTME: Audit log entity and store methods for authentication and authorization verdicts
// ABOUTME: Records handshake, agent VP, and per-tool decisions with their reason

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable decision.
type AuditAction string

const (
	AuditHandshake     AuditAction = "handshake"
	AuditAgentVP       AuditAction = "agent_vp"
	AuditToolAuthorize AuditAction = "tool_authorize"
)

// Outcome of an audited decision.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// AuditEntry is a single audit log entry.
type AuditEntry struct {
	ID         string      // UUID v4
	SessionID  string      // session the decision belongs to
	ActorDID   string      // user DID, or "anonymous"
	Action     AuditAction // what was decided
	TargetType string      // "identity", "agent", "tool"
	TargetID   string      // DID or tool call id
	Outcome    string      // OutcomeAllowed or OutcomeDenied
	Reason     string      // failure reason, empty when allowed
	Timestamp  time.Time
	Detail     map[string]any // source, algorithm, tool name, params
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	SessionID *string
	ActorDID  *string
	Action    *AuditAction
	Outcome   *string
	Since     *time.Time
	Limit     int // default 100, max 1000
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Outcome != OutcomeAllowed && e.Outcome != OutcomeDenied {
		return fmt.Errorf("invalid audit outcome %q", e.Outcome)
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	var reason *string
	if e.Reason != "" {
		reason = &e.Reason
	}

	query := `
		INSERT INTO audit_log (audit_id, session_id, actor_did, action, target_type, target_id, outcome, reason, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.SessionID,
		e.ActorDID,
		string(e.Action),
		e.TargetType,
		e.TargetID,
		e.Outcome,
		reason,
		e.Timestamp.UTC().Format(timeFormat),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"session_id", e.SessionID,
		"action", e.Action,
		"outcome", e.Outcome,
	)
	return nil
}

func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const auditLogQuery = `
	SELECT audit_id, session_id, actor_did, action, target_type, target_id, outcome, reason, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR session_id = ?)
	  AND (? IS NULL OR actor_did = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR outcome = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var action, since *string
	if f.Action != nil {
		a := string(*f.Action)
		action = &a
	}
	if f.Since != nil {
		ts := f.Since.UTC().Format(timeFormat)
		since = &ts
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		f.SessionID, f.SessionID,
		f.ActorDID, f.ActorDID,
		action, action,
		f.Outcome, f.Outcome,
		since, since,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var actionStr, tsStr string
		var reason, detailJSON *string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ActorDID, &actionStr, &e.TargetType, &e.TargetID,
			&e.Outcome, &reason, &tsStr, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(actionStr)
		if reason != nil {
			e.Reason = *reason
		}
		if e.Timestamp, err = time.Parse(timeFormat, tsStr); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
