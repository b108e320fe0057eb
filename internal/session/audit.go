// ABOUTME: Records authentication and authorization verdicts and mirrors history to the ledger
// ABOUTME: A nil ledger turns every call into a no-op; ledger failures never affect the session

package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/2389/helix-gateway/internal/conversation"
	"github.com/2389/helix-gateway/internal/credential"
	"github.com/2389/helix-gateway/internal/identity"
	"github.com/2389/helix-gateway/internal/store"
)

// Ledger persists audit entries and history events. *store.SQLiteStore
// satisfies it.
type Ledger interface {
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
	SaveEvents(ctx context.Context, events []*store.LedgerEvent) error
}

type auditor struct {
	ledger Ledger
	logger *slog.Logger
}

func newAuditor(ledger Ledger, logger *slog.Logger) *auditor {
	return &auditor{ledger: ledger, logger: logger}
}

func outcome(allowed bool) string {
	if allowed {
		return store.OutcomeAllowed
	}
	return store.OutcomeDenied
}

func actorOf(u User) string {
	if u.DID == "" {
		return AnonymousUser
	}
	return u.DID
}

func (a *auditor) append(ctx context.Context, e *store.AuditEntry) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.AppendAuditLog(ctx, e); err != nil {
		a.logger.Warn("failed to write audit entry", "action", e.Action, "error", err)
	}
}

// handshake records the identity verdict. result is nil for anonymous callers.
func (a *auditor) handshake(ctx context.Context, sessionID, actor string, result *identity.Result, err error) {
	detail := map[string]any{}
	if result != nil {
		detail["source"] = string(result.Source)
		if result.Algorithm != identity.AlgorithmNone {
			detail["algorithm"] = string(result.Algorithm)
		}
		if result.User != nil {
			detail["user_id"] = result.User.ID
		}
	} else {
		detail["source"] = AnonymousUser
	}

	e := &store.AuditEntry{
		SessionID:  sessionID,
		ActorDID:   actor,
		Action:     store.AuditHandshake,
		TargetType: "identity",
		TargetID:   actor,
		Outcome:    outcome(err == nil),
		Detail:     detail,
	}
	if err != nil {
		e.Reason = err.Error()
	}
	a.append(ctx, e)
}

func (a *auditor) agentVP(ctx context.Context, sessionID string, user User, agentDID string, v credential.Verdict) {
	a.append(ctx, &store.AuditEntry{
		SessionID:  sessionID,
		ActorDID:   actorOf(user),
		Action:     store.AuditAgentVP,
		TargetType: "agent",
		TargetID:   agentDID,
		Outcome:    outcome(v.Valid),
		Reason:     v.Reason,
		Detail:     map[string]any{"permissions": v.Permissions},
	})
}

func (a *auditor) toolDecision(ctx context.Context, sess *Session, p pendingCall, allowed bool, reason string) {
	a.append(ctx, &store.AuditEntry{
		SessionID:  sess.ID,
		ActorDID:   actorOf(sess.User),
		Action:     store.AuditToolAuthorize,
		TargetType: "tool",
		TargetID:   p.call.ID,
		Outcome:    outcome(allowed),
		Reason:     reason,
		Detail: map[string]any{
			"tool":   p.call.Name,
			"params": p.params,
		},
	})
}

// mirror writes the committed entries of a turn, starting at history index
// start, as ledger events.
func (a *auditor) mirror(ctx context.Context, sess *Session, agentDID string, start int, entries []conversation.Entry) {
	if a.ledger == nil || len(entries) == 0 {
		return
	}

	events := make([]*store.LedgerEvent, 0, len(entries))
	for i, e := range entries {
		ev := &store.LedgerEvent{
			SessionID: sess.ID,
			Seq:       start + i,
			Timestamp: e.Timestamp,
			Type:      store.EventTypeMessage,
		}
		if e.Content != "" {
			ev.Text = ptr(e.Content)
		}

		switch e.Role {
		case conversation.RoleUser:
			ev.Direction = store.EventDirectionInbound
			ev.Author = actorOf(sess.User)
		case conversation.RoleAssistant:
			ev.Direction = store.EventDirectionOutbound
			ev.Author = agentDID
			if len(e.ToolCalls) > 0 {
				names := make([]string, 0, len(e.ToolCalls))
				for _, c := range e.ToolCalls {
					names = append(names, c.Name)
				}
				ev.Type = store.EventTypeToolCall
				ev.ToolName = ptr(strings.Join(names, ","))
			}
		case conversation.RoleTool:
			ev.Direction = store.EventDirectionInbound
			ev.Author = e.Name
			ev.Type = store.EventTypeToolResult
			ev.ToolName = ptr(e.Name)
			ev.ToolCallID = ptr(e.ToolCallID)
		}
		events = append(events, ev)
	}

	if err := a.ledger.SaveEvents(ctx, events); err != nil {
		a.logger.Warn("failed to mirror history", "session_id", sess.ID, "error", err)
	}
}

func ptr(s string) *string {
	return &s
}
