// ABOUTME: Session controller driving the handshake and per-turn loop of one chat connection
// ABOUTME: Identity proof and agent VP are checked once; each tool call is gated by its own VP

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/helix-gateway/internal/conversation"
	"github.com/2389/helix-gateway/internal/credential"
	"github.com/2389/helix-gateway/internal/identity"
	"github.com/2389/helix-gateway/internal/packs"
)

// MaxToolAuthRounds is the number of tool_auth_request batches a turn may
// issue. Tool calls in the follow-up engine reply are discarded.
const MaxToolAuthRounds = 1

// DefaultToolAuthTimeout bounds the wait for tool_auth_response.
const DefaultToolAuthTimeout = 5 * time.Minute

var (
	// ErrHandshake marks a fatal handshake failure.
	ErrHandshake = errors.New("handshake failed")

	// ErrProtocolViolation marks a frame the client was not allowed to send.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrToolAuthTimeout is returned when no tool_auth_response arrives in time.
	ErrToolAuthTimeout = errors.New("timed out waiting for tool_auth_response")
)

// IdentityVerifier checks the handshake signature proof.
type IdentityVerifier interface {
	VerifyWithDirectory(ctx context.Context, did, message, signature string) *identity.Result
	VerifyWithKey(did, message, signature, publicKey string) *identity.Result
	Release(did, message, signature string)
}

// Policy holds the handshake and tool exposure flags.
type Policy struct {
	AllowAnonymous     bool
	AllowInlineKeys    bool
	DefaultPermissions []string
	ToolPolicy         packs.Policy
	ToolAuthTimeout    time.Duration
}

// Agent identifies the agent this gateway speaks for.
type Agent struct {
	DID  string
	Name string
}

// ControllerConfig wires a Controller. Ledger may be nil.
type ControllerConfig struct {
	Agent     Agent
	Policy    Policy
	Verifier  IdentityVerifier
	AgentGate credential.Gate
	ToolGate  credential.Gate
	Tools     *packs.Registry
	Router    *packs.Router
	Engine    conversation.Engine
	Sessions  *Registry
	Ledger    Ledger
	Logger    *slog.Logger
}

// Controller runs sessions. One Controller serves every connection; each
// call to Run owns a single session.
type Controller struct {
	agent     Agent
	policy    Policy
	verifier  IdentityVerifier
	agentGate credential.Gate
	toolGate  credential.Gate
	tools     *packs.Registry
	router    *packs.Router
	engine    conversation.Engine
	sessions  *Registry
	audit     *auditor
	logger    *slog.Logger
}

// NewController creates a Controller from its dependencies.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")

	policy := cfg.Policy
	if policy.ToolAuthTimeout <= 0 {
		policy.ToolAuthTimeout = DefaultToolAuthTimeout
	}
	if policy.ToolPolicy == "" {
		policy.ToolPolicy = packs.PolicyOpen
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewRegistry(logger)
	}

	return &Controller{
		agent:     cfg.Agent,
		policy:    policy,
		verifier:  cfg.Verifier,
		agentGate: cfg.AgentGate,
		toolGate:  cfg.ToolGate,
		tools:     cfg.Tools,
		router:    cfg.Router,
		engine:    cfg.Engine,
		sessions:  sessions,
		audit:     newAuditor(cfg.Ledger, logger),
		logger:    logger,
	}
}

// Sessions returns the registry of active sessions.
func (c *Controller) Sessions() *Registry {
	return c.sessions
}

// Run drives one connection from handshake to close. It returns nil when the
// client disconnects and a wrapped ErrHandshake or ErrProtocolViolation when
// the session was torn down for cause. The connection is always closed.
func (c *Controller) Run(ctx context.Context, id string, conn Conn) error {
	logger := c.logger.With("session_id", id)

	sess, err := c.handshake(ctx, id, conn, logger)
	if err != nil {
		logger.Warn("handshake failed", "error", err)
		_ = conn.Close(ClosePolicyViolation, "handshake failed")
		return err
	}
	defer c.sessions.Unregister(sess)
	defer sess.markClosed()

	err = c.loop(ctx, sess, conn, logger)
	switch {
	case err == nil, errors.Is(err, ErrConnClosed), errors.Is(err, context.Canceled):
		logger.Info("session closed", "turns", sess.Info().Turns)
		_ = conn.Close(CloseNormal, "")
		return nil
	case errors.Is(err, ErrProtocolViolation):
		logger.Warn("session closed on protocol violation", "error", err)
		_ = conn.Close(ClosePolicyViolation, "protocol violation")
		return err
	default:
		logger.Error("session failed", "error", err)
		_ = conn.Close(CloseInternalError, "internal error")
		return err
	}
}

// handshake reads the init frame, verifies the caller and the agent VP, and
// registers the session. Any failure has already been reported to the client.
func (c *Controller) handshake(ctx context.Context, id string, conn Conn, logger *slog.Logger) (*Session, error) {
	fail := func(msg string) error {
		c.sendError(ctx, conn, msg)
		return fmt.Errorf("%w: %s", ErrHandshake, msg)
	}

	in, err := readInbound(ctx, conn)
	if err != nil {
		if errors.Is(err, ErrConnClosed) {
			return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		return nil, fail(fmt.Sprintf("Invalid message: %v", err))
	}
	if in.Type != TypeInit {
		return nil, fail("First message must be of type 'init'")
	}

	user, err := c.authenticate(ctx, id, in)
	if err != nil {
		return nil, fail("User authentication failed: " + err.Error())
	}
	// The proof is only spent once the session is live.
	release := func() {
		if user.Source != AnonymousUser {
			c.verifier.Release(in.UserDID, in.Challenge, in.Signature)
		}
	}

	permissions, err := c.agentPermissions(ctx, id, user, in.AgentVP)
	if err != nil {
		release()
		return nil, fail("Agent VP verification failed: " + err.Error())
	}

	tools := c.tools.ListAvailable(permissions, c.policy.ToolPolicy)
	sess := newSession(id, user, permissions, tools)
	if err := c.sessions.Register(sess); err != nil {
		release()
		return nil, fail(fmt.Sprintf("Session %s is already active", id))
	}

	// Everything after registration must unregister on failure.
	if err := c.send(ctx, conn, StatusFrame{Type: TypeStatus, Message: StatusInitialized}); err != nil {
		c.sessions.Unregister(sess)
		release()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if err := c.send(ctx, conn, c.connectedFrame(sess)); err != nil {
		c.sessions.Unregister(sess)
		release()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	sess.setState(StateTurnIdle)
	logger.Debug("handshake complete", "user_did", user.DID, "tools", len(tools))
	return sess, nil
}

// authenticate checks the signature proof in init, or admits an anonymous
// caller when policy allows it.
func (c *Controller) authenticate(ctx context.Context, sessionID string, in *Inbound) (User, error) {
	if in.UserDID == "" || in.Challenge == "" || in.Signature == "" {
		if !c.policy.AllowAnonymous {
			err := errors.New("user_did, challenge and signature are required")
			c.audit.handshake(ctx, sessionID, AnonymousUser, nil, err)
			return User{}, err
		}
		c.audit.handshake(ctx, sessionID, AnonymousUser, nil, nil)
		return User{Source: AnonymousUser}, nil
	}

	var result *identity.Result
	if in.PublicKey != "" {
		if !c.policy.AllowInlineKeys {
			err := errors.New("inline public keys are not accepted")
			c.audit.handshake(ctx, sessionID, in.UserDID, &identity.Result{Source: identity.SourceInlineKey}, err)
			return User{}, err
		}
		result = c.verifier.VerifyWithKey(in.UserDID, in.Challenge, in.Signature, in.PublicKey)
	} else {
		result = c.verifier.VerifyWithDirectory(ctx, in.UserDID, in.Challenge, in.Signature)
	}

	if !result.Valid || result.User == nil {
		reason := result.Error
		if reason == "" {
			reason = "Invalid signature"
		}
		err := errors.New(reason)
		c.audit.handshake(ctx, sessionID, in.UserDID, result, err)
		return User{}, err
	}

	c.audit.handshake(ctx, sessionID, in.UserDID, result, nil)
	return User{
		DID:    in.UserDID,
		ID:     result.User.ID,
		Name:   result.User.DisplayName,
		Source: string(result.Source),
	}, nil
}

// agentPermissions resolves the session's permission set. Without an agent
// VP the configured defaults apply; with one, the oracle's list replaces them
// when it returns one.
func (c *Controller) agentPermissions(ctx context.Context, sessionID string, user User, vp json.RawMessage) ([]string, error) {
	if credential.Missing(vp) {
		return append([]string(nil), c.policy.DefaultPermissions...), nil
	}

	verdict := c.agentGate.Verify(ctx, vp)
	c.audit.agentVP(ctx, sessionID, user, c.agent.DID, verdict)
	if !verdict.Valid {
		return nil, errors.New(verdict.Reason)
	}
	if verdict.Permissions != nil {
		return append([]string(nil), verdict.Permissions...), nil
	}
	return append([]string(nil), c.policy.DefaultPermissions...), nil
}

func (c *Controller) connectedFrame(sess *Session) ConnectedFrame {
	user := sess.User.DID
	if user == "" {
		user = AnonymousUser
	}
	tools := make([]ToolInfo, 0, len(sess.tools))
	for _, t := range sess.tools {
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description})
	}
	return ConnectedFrame{
		Type:             TypeConnected,
		Message:          ConnectedMessage,
		User:             user,
		UserName:         sess.User.Name,
		AgentDID:         c.agent.DID,
		AgentName:        c.agent.Name,
		AgentPermissions: sess.Permissions(),
		Tools:            tools,
	}
}

// loop serves turns until the client leaves or a fatal error occurs.
func (c *Controller) loop(ctx context.Context, sess *Session, conn Conn, logger *slog.Logger) error {
	for {
		in, err := readInbound(ctx, conn)
		if err != nil {
			if errors.Is(err, ErrConnClosed) || ctx.Err() != nil {
				return err
			}
			c.sendError(ctx, conn, fmt.Sprintf("Invalid message: %v", err))
			return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}

		switch in.Type {
		case TypeMessage:
			if in.Content == "" {
				continue
			}
			if err := c.turn(ctx, sess, conn, in.Content, logger); err != nil {
				return err
			}
		case TypeToolAuthResponse:
			c.sendError(ctx, conn, "Unexpected tool_auth_response: no tool authorization is pending")
			return fmt.Errorf("%w: unsolicited %s", ErrProtocolViolation, in.Type)
		default:
			logger.Debug("ignoring frame", "type", in.Type)
		}
	}
}

func readInbound(ctx context.Context, conn Conn) (*Inbound, error) {
	data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return &in, nil
}

func (c *Controller) send(ctx context.Context, conn Conn, v any) error {
	if err := conn.Write(ctx, v); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// sendError reports msg to the client. Write failures are only logged since
// the caller is already on an error path.
func (c *Controller) sendError(ctx context.Context, conn Conn, msg string) {
	if err := conn.Write(ctx, ErrorFrame{Type: TypeError, Message: msg}); err != nil {
		c.logger.Debug("failed to send error frame", "error", err)
	}
}
