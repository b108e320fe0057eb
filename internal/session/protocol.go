// ABOUTME: JSON envelopes exchanged with the chat client over the session transport
// ABOUTME: Every frame carries a "type" discriminator

package session

import (
	"context"
	"encoding/json"
	"errors"
)

// Envelope types.
const (
	TypeInit             = "init"
	TypeStatus           = "status"
	TypeConnected        = "connected"
	TypeError            = "error"
	TypeMessage          = "message"
	TypeTyping           = "typing"
	TypeToolAuthRequest  = "tool_auth_request"
	TypeToolAuthResponse = "tool_auth_response"
	TypeResponse         = "response"
)

// Fixed client-facing texts.
const (
	StatusInitialized = "Agent initialized successfully!"
	ConnectedMessage  = "Connected to bookstore!"
	TypingMessage     = "Agent is thinking..."
	DefaultReply      = "Done."
	AnonymousUser     = "anonymous"
)

// SummaryResultLimit bounds each result echoed in a response's tool_calls.
const SummaryResultLimit = 300

// ErrConnClosed is returned by Conn.Read once the peer has gone away.
var ErrConnClosed = errors.New("connection closed")

// CloseCode tells the transport how a session ended.
type CloseCode int

const (
	CloseNormal CloseCode = iota
	ClosePolicyViolation
	CloseInternalError
)

// Conn is the session transport. Read blocks until a frame arrives, the
// context ends, or the peer disconnects (ErrConnClosed). A context expiry on
// Read must leave the connection usable for a final error frame.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, v any) error
	Close(code CloseCode, reason string) error
}

// Inbound is any client frame. Only the fields for its Type are set.
type Inbound struct {
	Type string `json:"type"`

	// init
	UserDID   string          `json:"user_did,omitempty"`
	Challenge string          `json:"challenge,omitempty"`
	Signature string          `json:"signature,omitempty"`
	PublicKey string          `json:"public_key,omitempty"`
	AgentVP   json.RawMessage `json:"agent_vp,omitempty"`

	// message
	Content string `json:"content,omitempty"`

	// tool_auth_response: call id -> VP
	VPs map[string]json.RawMessage `json:"vps,omitempty"`
}

// StatusFrame reports progress.
type StatusFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorFrame reports a failure to the client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToolInfo is an advertised tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConnectedFrame acknowledges a successful handshake.
type ConnectedFrame struct {
	Type             string     `json:"type"`
	Message          string     `json:"message"`
	User             string     `json:"user"`
	UserName         string     `json:"user_name,omitempty"`
	AgentDID         string     `json:"agent_did"`
	AgentName        string     `json:"agent_name"`
	AgentPermissions []string   `json:"agent_permissions"`
	Tools            []ToolInfo `json:"tools"`
}

// ToolAuthRequest asks the client for a VP for one pending call.
type ToolAuthRequest struct {
	ID             string          `json:"id"`
	Tool           string          `json:"tool"`
	Params         json.RawMessage `json:"params"`
	RequiredVCType string          `json:"required_vc_type"`
}

// ToolAuthRequestFrame carries every pending call of a turn.
type ToolAuthRequestFrame struct {
	Type     string            `json:"type"`
	Requests []ToolAuthRequest `json:"requests"`
}

// ToolCallSummary reports one executed or blocked call.
type ToolCallSummary struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
	Result string          `json:"result"`
}

// ResponseFrame is the final reply of a turn.
type ResponseFrame struct {
	Type        string            `json:"type"`
	Content     string            `json:"content"`
	ContentHTML string            `json:"content_html,omitempty"`
	ToolCalls   []ToolCallSummary `json:"tool_calls"`
}
