// ABOUTME: Append-only conversation history with tool-call ordering enforcement
// ABOUTME: A tool-call entry must be answered by all its results before the next user entry

package conversation

import (
	"errors"
	"fmt"
	"time"
)

// Roles of history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var (
	// ErrPendingToolResults indicates an entry was appended while tool calls
	// from the previous assistant entry are still unanswered.
	ErrPendingToolResults = errors.New("tool results pending")

	// ErrUnexpectedToolResult indicates a tool result that answers no
	// outstanding call, or answers them out of order.
	ErrUnexpectedToolResult = errors.New("unexpected tool result")
)

// ToolCall is a tool invocation requested by the engine. Arguments holds the
// provider's raw argument text, normally a JSON object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Entry is one item of conversation history.
type Entry struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// History is an ordered, append-only list of entries. It is not safe for
// concurrent use; a session owns exactly one.
type History struct {
	entries []Entry
	pending []string // call IDs awaiting results, in request order
	now     func() time.Time
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{now: time.Now}
}

// Clone returns an independent copy. A turn stages its entries on a clone and
// the session adopts it only when the turn completes.
func (h *History) Clone() *History {
	return &History{
		entries: append([]Entry(nil), h.entries...),
		pending: append([]string(nil), h.pending...),
		now:     h.now,
	}
}

// AppendUser records a user message.
func (h *History) AppendUser(content string) error {
	if len(h.pending) > 0 {
		return fmt.Errorf("%w: %d unanswered", ErrPendingToolResults, len(h.pending))
	}
	h.append(Entry{Role: RoleUser, Content: content})
	return nil
}

// AppendAssistant records an engine reply. Any tool calls it carries must be
// answered with AppendToolResult, in the same order, before anything else.
func (h *History) AppendAssistant(text string, calls []ToolCall) error {
	if len(h.pending) > 0 {
		return fmt.Errorf("%w: %d unanswered", ErrPendingToolResults, len(h.pending))
	}
	h.append(Entry{Role: RoleAssistant, Content: text, ToolCalls: append([]ToolCall(nil), calls...)})
	for _, c := range calls {
		h.pending = append(h.pending, c.ID)
	}
	return nil
}

// AppendToolResult records the result for the next outstanding tool call.
func (h *History) AppendToolResult(callID, name, content string) error {
	if len(h.pending) == 0 || h.pending[0] != callID {
		return fmt.Errorf("%w: %q", ErrUnexpectedToolResult, callID)
	}
	h.pending = h.pending[1:]
	h.append(Entry{Role: RoleTool, ToolCallID: callID, Name: name, Content: content})
	return nil
}

// Pending returns how many tool calls await results.
func (h *History) Pending() int {
	return len(h.pending)
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of all entries.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// Since returns a copy of entries from index i onward.
func (h *History) Since(i int) []Entry {
	if i >= len(h.entries) {
		return nil
	}
	if i < 0 {
		i = 0
	}
	return append([]Entry(nil), h.entries[i:]...)
}

func (h *History) append(e Entry) {
	e.Timestamp = h.now()
	h.entries = append(h.entries, e)
}
