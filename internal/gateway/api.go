// ABOUTME: Operator HTTP API for inspecting active sessions and the audit ledger
// ABOUTME: Responses are JSON; ledger endpoints return 503 when no database is configured

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/helix-gateway/internal/session"
	"github.com/2389/helix-gateway/internal/store"
)

// SessionListResponse is the body of GET /api/sessions.
type SessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// AuditEntryResponse is one audit entry as served over HTTP.
type AuditEntryResponse struct {
	ID         string         `json:"id"`
	ActorDID   string         `json:"actor_did"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// EventResponse is one mirrored history entry as served over HTTP.
type EventResponse struct {
	Seq        int       `json:"seq"`
	Direction  string    `json:"direction"`
	Author     string    `json:"author"`
	Type       string    `json:"type"`
	Text       *string   `json:"text,omitempty"`
	ToolName   *string   `json:"tool_name,omitempty"`
	ToolCallID *string   `json:"tool_call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := g.sessions.List()
	g.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: infos, Count: len(infos)})
}

func (g *Gateway) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "audit ledger disabled")
		return
	}

	sessionID := r.PathValue("session_id")
	filter := store.AuditFilter{SessionID: &sessionID, Limit: parseLimit(r)}
	if outcome := r.URL.Query().Get("outcome"); outcome != "" {
		filter.Outcome = &outcome
	}

	entries, err := g.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing audit log", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, AuditEntryResponse{
			ID:         e.ID,
			ActorDID:   e.ActorDID,
			Action:     string(e.Action),
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Outcome:    e.Outcome,
			Reason:     e.Reason,
			Timestamp:  e.Timestamp,
			Detail:     e.Detail,
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "audit ledger disabled")
		return
	}

	sessionID := r.PathValue("session_id")
	events, err := g.store.ListEventsBySession(r.Context(), sessionID, parseLimit(r))
	if err != nil {
		g.logger.Error("listing ledger events", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, EventResponse{
			Seq:        e.Seq,
			Direction:  string(e.Direction),
			Author:     e.Author,
			Type:       string(e.Type),
			Text:       e.Text,
			ToolName:   e.ToolName,
			ToolCallID: e.ToolCallID,
			Timestamp:  e.Timestamp,
		})
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// parseLimit reads ?limit=N; invalid values fall back to the store default.
func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
