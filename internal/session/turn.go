// ABOUTME: One conversation turn: engine call, tool authorization round, and final reply
// ABOUTME: History is staged on a clone and committed once tools have run or the turn completes

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/helix-gateway/internal/conversation"
	"github.com/2389/helix-gateway/internal/credential"
)

// Blocked-call result texts.
const (
	missingVPFormat    = "❌ Authorization failed: Verifiable Presentation is REQUIRED to execute '%s'. Please ensure /api/vps/create or /api/vps/agent/:agent_did is called before tool execution."
	invalidVPFormat    = "❌ VP verification failed for '%s': %s. Tool execution blocked."
	notPermittedFormat = "❌ Authorization failed: '%s' is not permitted for this session. Tool execution blocked."
	invalidArgsFormat  = "Error executing %s: invalid arguments: %v"
)

var emptyParams = json.RawMessage(`{}`)

// pendingCall is a tool call awaiting authorization.
type pendingCall struct {
	call    conversation.ToolCall
	params  json.RawMessage
	argsErr error
}

// turn handles one user message. A returned error ends the session; engine
// failures are reported to the client and leave the session usable.
func (c *Controller) turn(ctx context.Context, sess *Session, conn Conn, content string, logger *slog.Logger) error {
	if err := c.send(ctx, conn, StatusFrame{Type: TypeTyping, Message: TypingMessage}); err != nil {
		return err
	}

	sess.mu.RLock()
	staged := sess.history.Clone()
	sess.mu.RUnlock()
	start := staged.Len()

	if err := staged.AppendUser(content); err != nil {
		return err
	}

	sess.setState(StateAwaitingEngine)
	reply, err := c.engine.Respond(ctx, staged.Entries(), sess.tools)
	if err != nil {
		return c.abortTurn(ctx, sess, conn, err, logger)
	}

	summaries := []ToolCallSummary{}
	for round := 0; round < MaxToolAuthRounds && len(reply.ToolCalls) > 0; round++ {
		if err := staged.AppendAssistant(reply.Text, reply.ToolCalls); err != nil {
			return err
		}

		calls := prepareCalls(reply.ToolCalls)
		vps, err := c.requestToolAuth(ctx, sess, conn, calls)
		if err != nil {
			return err
		}

		sess.setState(StateExecutingTools)
		for _, p := range calls {
			result := c.authorizeAndExecute(ctx, sess, p, vps[p.call.ID])
			if err := staged.AppendToolResult(p.call.ID, p.call.Name, result); err != nil {
				return err
			}
			summaries = append(summaries, ToolCallSummary{
				Tool:   p.call.Name,
				Params: p.params,
				Result: truncate(result, SummaryResultLimit),
			})
		}

		sess.setState(StateAwaitingEngine)
		reply, err = c.engine.Respond(ctx, staged.Entries(), nil)
		if err != nil {
			// Tool results are kept once tools have run.
			if ctx.Err() == nil && staged.Pending() == 0 {
				sess.commit(staged)
				c.audit.mirror(ctx, sess, c.agent.DID, start, staged.Since(start))
			}
			return c.abortTurn(ctx, sess, conn, err, logger)
		}
	}
	if len(reply.ToolCalls) > 0 {
		logger.Warn("follow-up reply requested more tools, discarding", "dropped", len(reply.ToolCalls))
	}

	text := reply.Text
	if text == "" {
		text = DefaultReply
	}
	if err := staged.AppendAssistant(text, nil); err != nil {
		return err
	}

	sess.commit(staged)
	c.audit.mirror(ctx, sess, c.agent.DID, start, staged.Since(start))
	sess.setState(StateTurnIdle)

	return c.send(ctx, conn, ResponseFrame{
		Type:        TypeResponse,
		Content:     text,
		ContentHTML: renderHTML(text, logger),
		ToolCalls:   summaries,
	})
}

// abortTurn reports an engine failure. Uncommitted turn state is dropped.
func (c *Controller) abortTurn(ctx context.Context, sess *Session, conn Conn, err error, logger *slog.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Warn("engine call failed", "error", err)
	sess.setState(StateTurnIdle)
	return c.send(ctx, conn, ErrorFrame{Type: TypeError, Message: "Error: " + err.Error()})
}

// prepareCalls decodes each call's arguments. Malformed arguments are kept
// so the call can still be answered in order.
func prepareCalls(calls []conversation.ToolCall) []pendingCall {
	out := make([]pendingCall, 0, len(calls))
	for _, call := range calls {
		p := pendingCall{call: call, params: emptyParams}
		params, err := normalizeArgs(call.Arguments)
		if err != nil {
			p.argsErr = err
		} else {
			p.params = params
		}
		out = append(out, p)
	}
	return out
}

// normalizeArgs returns compact JSON for an argument object.
func normalizeArgs(raw string) (json.RawMessage, error) {
	if raw == "" {
		return emptyParams, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return emptyParams, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// requestToolAuth sends the single tool_auth_request of the turn and waits
// for its response.
func (c *Controller) requestToolAuth(ctx context.Context, sess *Session, conn Conn, calls []pendingCall) (map[string]json.RawMessage, error) {
	requests := make([]ToolAuthRequest, 0, len(calls))
	for _, p := range calls {
		requests = append(requests, ToolAuthRequest{
			ID:             p.call.ID,
			Tool:           p.call.Name,
			Params:         p.params,
			RequiredVCType: c.tools.RequiredCredential(p.call.Name),
		})
	}

	sess.setState(StateAwaitingToolAuth)
	if err := c.send(ctx, conn, ToolAuthRequestFrame{Type: TypeToolAuthRequest, Requests: requests}); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.policy.ToolAuthTimeout)
	defer cancel()

	in, err := readInbound(waitCtx, conn)
	if err != nil {
		switch {
		case errors.Is(err, ErrConnClosed), ctx.Err() != nil:
			return nil, err
		case errors.Is(err, context.DeadlineExceeded):
			c.sendError(ctx, conn, "Timed out waiting for tool_auth_response")
			return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, ErrToolAuthTimeout)
		default:
			c.sendError(ctx, conn, fmt.Sprintf("Invalid message: %v", err))
			return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
	}
	if in.Type != TypeToolAuthResponse {
		c.sendError(ctx, conn, "Expected tool_auth_response from UI")
		return nil, fmt.Errorf("%w: got %q while awaiting %s", ErrProtocolViolation, in.Type, TypeToolAuthResponse)
	}
	if in.VPs == nil {
		return map[string]json.RawMessage{}, nil
	}
	return in.VPs, nil
}

// authorizeAndExecute gates one call on its VP and runs it when allowed.
// The returned text is the tool result fed back to the engine.
func (c *Controller) authorizeAndExecute(ctx context.Context, sess *Session, p pendingCall, vp json.RawMessage) string {
	name := p.call.Name

	if credential.Missing(vp) {
		result := fmt.Sprintf(missingVPFormat, name)
		c.audit.toolDecision(ctx, sess, p, false, "Verifiable Presentation is required")
		return result
	}
	registered := c.tools.GetBuiltinTool(name) != nil
	if registered && !sess.allows(name) {
		c.audit.toolDecision(ctx, sess, p, false, "tool not permitted for session")
		return fmt.Sprintf(notPermittedFormat, name)
	}

	verdict := c.toolGate.Verify(ctx, vp)
	if !verdict.Valid {
		c.audit.toolDecision(ctx, sess, p, false, verdict.Reason)
		return fmt.Sprintf(invalidVPFormat, name, verdict.Reason)
	}
	c.audit.toolDecision(ctx, sess, p, true, "")

	if !registered {
		return c.router.Execute(ctx, name, p.params)
	}
	if p.argsErr != nil {
		return fmt.Sprintf(invalidArgsFormat, name, p.argsErr)
	}
	return c.router.Execute(ctx, name, p.params)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
