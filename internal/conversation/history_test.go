// ABOUTME: Tests for conversation history ordering rules
// ABOUTME: A tool-call entry must be answered in order before the next user entry

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_ToolResultsMustFollowCalls(t *testing.T) {
	h := NewHistory()
	require.NoError(t, h.AppendUser("find Dune"))
	require.NoError(t, h.AppendAssistant("", []ToolCall{
		{ID: "c1", Name: "search_books", Arguments: `{"query":"Dune"}`},
		{ID: "c2", Name: "view_inventory", Arguments: `{}`},
	}))
	assert.Equal(t, 2, h.Pending())

	assert.ErrorIs(t, h.AppendUser("hello?"), ErrPendingToolResults)
	assert.ErrorIs(t, h.AppendAssistant("done", nil), ErrPendingToolResults)
	assert.ErrorIs(t, h.AppendToolResult("c2", "view_inventory", "x"), ErrUnexpectedToolResult, "results are answered in order")

	require.NoError(t, h.AppendToolResult("c1", "search_books", "ID: 1 | Title: Dune"))
	require.NoError(t, h.AppendToolResult("c2", "view_inventory", "..."))
	assert.Equal(t, 0, h.Pending())

	require.NoError(t, h.AppendAssistant("Found Dune.", nil))
	require.NoError(t, h.AppendUser("thanks"))

	entries := h.Entries()
	require.Len(t, entries, 6)
	roles := make([]string, 0, len(entries))
	for _, e := range entries {
		roles = append(roles, e.Role)
	}
	assert.Equal(t, []string{RoleUser, RoleAssistant, RoleTool, RoleTool, RoleAssistant, RoleUser}, roles)
	assert.Equal(t, "c1", entries[2].ToolCallID)
}

func TestHistory_UnexpectedToolResult(t *testing.T) {
	h := NewHistory()
	assert.ErrorIs(t, h.AppendToolResult("c1", "search_books", "x"), ErrUnexpectedToolResult)
	assert.Equal(t, 0, h.Len())
}

func TestHistory_CloneIsIndependent(t *testing.T) {
	h := NewHistory()
	require.NoError(t, h.AppendUser("one"))

	staged := h.Clone()
	require.NoError(t, staged.AppendUser("two"))
	require.NoError(t, staged.AppendAssistant("", []ToolCall{{ID: "c1", Name: "search_books"}}))

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 0, h.Pending())
	assert.Equal(t, 3, staged.Len())
	assert.Equal(t, 1, staged.Pending())
}

func TestHistory_Since(t *testing.T) {
	h := NewHistory()
	require.NoError(t, h.AppendUser("one"))
	require.NoError(t, h.AppendAssistant("two", nil))

	assert.Len(t, h.Since(0), 2)
	assert.Len(t, h.Since(1), 1)
	assert.Nil(t, h.Since(5))

	entries := h.Entries()
	entries[0].Content = "mutated"
	assert.Equal(t, "one", h.Entries()[0].Content)
}
