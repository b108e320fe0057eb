// ABOUTME: Session state: identity, immutable permissions, history, and lifecycle state
// ABOUTME: A session is owned by one controller goroutine; snapshots are safe from any goroutine

package session

import (
	"sync"
	"time"

	"github.com/2389/helix-gateway/internal/conversation"
	"github.com/2389/helix-gateway/internal/packs"
)

// State is a session lifecycle state.
type State int

const (
	StateHandshaking State = iota
	StateAuthenticated
	StateTurnIdle
	StateAwaitingEngine
	StateAwaitingToolAuth
	StateExecutingTools
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateAuthenticated:
		return "authenticated"
	case StateTurnIdle:
		return "turn_idle"
	case StateAwaitingEngine:
		return "awaiting_engine"
	case StateAwaitingToolAuth:
		return "awaiting_tool_auth"
	case StateExecutingTools:
		return "executing_tools"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// User is the authenticated caller. DID is empty for anonymous sessions.
type User struct {
	DID    string
	ID     string
	Name   string
	Source string // identity source, or "anonymous"
}

// Session is one authenticated chat connection.
type Session struct {
	ID          string
	User        User
	ConnectedAt time.Time

	permissions []string
	tools       []*packs.ToolDefinition
	history     *conversation.History

	mu    sync.RWMutex
	state State
	turns int

	closeOnce sync.Once
}

func newSession(id string, user User, permissions []string, tools []*packs.ToolDefinition) *Session {
	return &Session{
		ID:          id,
		User:        user,
		ConnectedAt: time.Now().UTC(),
		permissions: append([]string(nil), permissions...),
		tools:       tools,
		history:     conversation.NewHistory(),
		state:       StateAuthenticated,
	}
}

// Permissions returns a copy of the permission set fixed at handshake.
func (s *Session) Permissions() []string {
	return append([]string(nil), s.permissions...)
}

// Tools returns the tools advertised to this session.
func (s *Session) Tools() []*packs.ToolDefinition {
	return append([]*packs.ToolDefinition(nil), s.tools...)
}

// allows reports whether name is among the advertised tools.
func (s *Session) allows(name string) bool {
	for _, t := range s.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = state
}

// commit adopts a completed turn's staged history.
func (s *Session) commit(staged *conversation.History) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = staged
	s.turns++
}

// markClosed moves the session to Closed. It reports whether this call made
// the transition; later calls are no-ops.
func (s *Session) markClosed() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		closed = true
	})
	return closed
}

// Info is a point-in-time view of a session for operators.
type Info struct {
	ID          string    `json:"id"`
	UserDID     string    `json:"user_did,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	Source      string    `json:"source"`
	Permissions []string  `json:"permissions"`
	State       string    `json:"state"`
	Turns       int       `json:"turns"`
	HistoryLen  int       `json:"history_len"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:          s.ID,
		UserDID:     s.User.DID,
		UserName:    s.User.Name,
		Source:      s.User.Source,
		Permissions: s.Permissions(),
		State:       s.state.String(),
		Turns:       s.turns,
		HistoryLen:  s.history.Len(),
		ConnectedAt: s.ConnectedAt,
	}
}
