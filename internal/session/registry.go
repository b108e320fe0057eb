// ABOUTME: Process-wide table of active sessions keyed by session id
// ABOUTME: Sessions are added after a successful handshake and removed when they close

package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrSessionExists indicates a session with the same ID is already active.
var ErrSessionExists = errors.New("session already active")

// Registry tracks active sessions.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register adds a session. Returns ErrSessionExists if the ID is taken.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return ErrSessionExists
	}

	r.sessions[s.ID] = s
	r.logger.Info("=== SESSION CONNECTED ===",
		"session_id", s.ID,
		"user_did", s.User.DID,
		"source", s.User.Source,
		"permissions", s.permissions,
		"total_sessions", len(r.sessions),
	)
	return nil
}

// Unregister removes a session if it is the one registered under its ID.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.sessions[s.ID]; exists && current == s {
		delete(r.sessions, s.ID)
		r.logger.Info("=== SESSION DISCONNECTED ===",
			"session_id", s.ID,
			"user_did", s.User.DID,
			"total_sessions", len(r.sessions),
		)
	}
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of all active sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
