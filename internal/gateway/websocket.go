// ABOUTME: WebSocket chat endpoint and the transport adapter handed to session controllers
// ABOUTME: A reader goroutine feeds frames so a timed-out read never tears down the socket

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/2389/helix-gateway/internal/session"
)

const (
	// maxFrameBytes bounds one client frame; VPs are larger than the
	// library's 32 KiB default.
	maxFrameBytes = 1 << 20

	writeTimeout = 10 * time.Second
)

// handleChat upgrades the request and runs one session on it.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	opts := &websocket.AcceptOptions{}
	if len(g.config.Server.AllowedOrigins) > 0 {
		opts.OriginPatterns = g.config.Server.AllowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		g.logger.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(g.sessionsCtx, cancel)
	defer stop()

	ws := newWSConn(ctx, cancel, conn)
	if err := g.controller.Run(ctx, sessionID, ws); err != nil {
		g.logger.Info("session ended", "session_id", sessionID, "reason", err)
	}
}

// wsConn adapts a websocket.Conn to session.Conn.
type wsConn struct {
	conn   *websocket.Conn
	frames chan []byte

	mu      sync.Mutex
	readErr error
}

// newWSConn starts the reader. cancel ends the session context when the
// client goes away, so a pending engine or tool call is abandoned.
func newWSConn(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxFrameBytes)
	c := &wsConn{conn: conn, frames: make(chan []byte, 16)}
	go c.readLoop(ctx, cancel)
	return c
}

func (c *wsConn) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer close(c.frames)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			cancel()
			return
		}
		select {
		case c.frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// Read returns the next frame. A context expiry leaves the socket open.
func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.frames:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", session.ErrConnClosed, err)
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write sends v as a JSON text frame.
func (c *wsConn) Write(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", session.ErrConnClosed, err)
		}
		return err
	}
	return nil
}

// Close ends the connection with the status matching code.
func (c *wsConn) Close(code session.CloseCode, reason string) error {
	status := websocket.StatusNormalClosure
	switch code {
	case session.ClosePolicyViolation:
		status = websocket.StatusPolicyViolation
	case session.CloseInternalError:
		status = websocket.StatusInternalError
	}
	return c.conn.Close(status, reason)
}
