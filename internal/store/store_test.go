// ABOUTME: Tests for the SQLite audit ledger
// ABOUTME: Covers schema creation, audit append/list filtering, and ledger event ordering

package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "audit.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.AppendAuditLog(context.Background(), &AuditEntry{
		SessionID: "s", ActorDID: "anonymous", Action: AuditHandshake,
		TargetType: "identity", TargetID: "anonymous", Outcome: OutcomeAllowed,
	}))

	entries, err := store.ListAuditLog(context.Background(), AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAuditStore_AppendAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	entries := []*AuditEntry{
		{SessionID: "s1", ActorDID: "did:a", Action: AuditHandshake, TargetType: "identity", TargetID: "did:a",
			Outcome: OutcomeAllowed, Timestamp: base, Detail: map[string]any{"source": "inline_key", "algorithm": "Ed25519"}},
		{SessionID: "s1", ActorDID: "did:a", Action: AuditAgentVP, TargetType: "agent", TargetID: "did:agent",
			Outcome: OutcomeAllowed, Timestamp: base.Add(time.Second)},
		{SessionID: "s1", ActorDID: "did:a", Action: AuditToolAuthorize, TargetType: "tool", TargetID: "call_1",
			Outcome: OutcomeDenied, Reason: "no presentation", Timestamp: base.Add(2 * time.Second)},
		{SessionID: "s2", ActorDID: "did:b", Action: AuditHandshake, TargetType: "identity", TargetID: "did:b",
			Outcome: OutcomeDenied, Reason: "Invalid Ed25519 signature", Timestamp: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendAuditLog(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	all, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "s2", all[0].SessionID, "newest first")

	s1, err := store.ListAuditLog(ctx, AuditFilter{SessionID: strPtr("s1")})
	require.NoError(t, err)
	assert.Len(t, s1, 3)

	denied, err := store.ListAuditLog(ctx, AuditFilter{Outcome: strPtr(OutcomeDenied)})
	require.NoError(t, err)
	require.Len(t, denied, 2)
	assert.Equal(t, "Invalid Ed25519 signature", denied[0].Reason)

	action := AuditHandshake
	handshakes, err := store.ListAuditLog(ctx, AuditFilter{Action: &action, ActorDID: strPtr("did:a")})
	require.NoError(t, err)
	require.Len(t, handshakes, 1)
	assert.Equal(t, "inline_key", handshakes[0].Detail["source"])
	assert.Empty(t, handshakes[0].Reason)

	since := base.Add(1500 * time.Millisecond)
	recent, err := store.ListAuditLog(ctx, AuditFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := store.ListAuditLog(ctx, AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditStore_RejectsUnknownOutcome(t *testing.T) {
	store := setupTestStore(t)
	err := store.AppendAuditLog(context.Background(), &AuditEntry{SessionID: "s", Action: AuditHandshake, Outcome: "maybe"})
	assert.Error(t, err)
}

func TestLedgerEvents_SaveAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	events := []*LedgerEvent{
		{SessionID: "s1", Seq: 0, Direction: EventDirectionInbound, Author: "did:a", Type: EventTypeMessage, Text: strPtr("find Dune")},
		{SessionID: "s1", Seq: 1, Direction: EventDirectionOutbound, Author: "did:agent", Type: EventTypeToolCall, ToolName: strPtr("search_books"), ToolCallID: strPtr("c1")},
		{SessionID: "s1", Seq: 2, Direction: EventDirectionInbound, Author: "search_books", Type: EventTypeToolResult, Text: strPtr("ID: 1 | Title: Dune"), ToolCallID: strPtr("c1")},
	}
	require.NoError(t, store.SaveEvents(ctx, events))
	require.NoError(t, store.SaveEvents(ctx, []*LedgerEvent{
		{SessionID: "s2", Seq: 0, Direction: EventDirectionInbound, Author: "did:b", Type: EventTypeMessage},
	}))

	got, err := store.ListEventsBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, EventTypeToolCall, got[1].Type)
	assert.Equal(t, "search_books", *got[1].ToolName)
	assert.Nil(t, got[1].Text)
	assert.Equal(t, "ID: 1 | Title: Dune", *got[2].Text)

	limited, err := store.ListEventsBySession(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLedgerEvents_DuplicateSeqRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.SaveEvents(ctx, []*LedgerEvent{
		{SessionID: "s1", Seq: 0, Direction: EventDirectionInbound, Author: "a", Type: EventTypeMessage},
		{SessionID: "s1", Seq: 0, Direction: EventDirectionInbound, Author: "a", Type: EventTypeMessage},
	})
	require.Error(t, err)

	got, err := store.ListEventsBySession(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
