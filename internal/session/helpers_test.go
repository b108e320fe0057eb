// ABOUTME: Test doubles for session tests: in-memory transport, scripted engine, fake oracle
// ABOUTME: The bookstore side runs behind httptest so downstream calls can be counted

package session

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/helix-gateway/internal/bookstore"
	"github.com/2389/helix-gateway/internal/builtins"
	"github.com/2389/helix-gateway/internal/conversation"
	"github.com/2389/helix-gateway/internal/credential"
	"github.com/2389/helix-gateway/internal/identity"
	"github.com/2389/helix-gateway/internal/packs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is an in-memory Conn. Frames the controller writes are queued on
// out; frames the test sends are queued on in.
type fakeConn struct {
	in  chan []byte
	out chan []byte

	inOnce    sync.Once
	closeOnce sync.Once
	closed    chan struct{}

	mu        sync.Mutex
	closeCode CloseCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, ErrConnClosed
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.out <- data
	return nil
}

func (c *fakeConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// hangup simulates the client disconnecting.
func (c *fakeConn) hangup() {
	c.inOnce.Do(func() { close(c.in) })
}

func (c *fakeConn) code() CloseCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// testFrame decodes any outbound frame.
type testFrame struct {
	Type             string            `json:"type"`
	Message          string            `json:"message"`
	Content          string            `json:"content"`
	ContentHTML      string            `json:"content_html"`
	User             string            `json:"user"`
	UserName         string            `json:"user_name"`
	AgentDID         string            `json:"agent_did"`
	AgentName        string            `json:"agent_name"`
	AgentPermissions []string          `json:"agent_permissions"`
	Tools            []ToolInfo        `json:"tools"`
	Requests         []ToolAuthRequest `json:"requests"`
	ToolCalls        []ToolCallSummary `json:"tool_calls"`
}

func (f testFrame) toolNames() []string {
	names := make([]string, 0, len(f.Tools))
	for _, t := range f.Tools {
		names = append(names, t.Name)
	}
	return names
}

// send queues a client frame.
func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- data
}

// expect reads the next outbound frame and checks its type.
func (c *fakeConn) expect(t *testing.T, typ string) testFrame {
	t.Helper()
	select {
	case data := <-c.out:
		var f testFrame
		require.NoError(t, json.Unmarshal(data, &f))
		require.Equal(t, typ, f.Type, "unexpected frame: %s", data)
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q frame", typ)
		return testFrame{}
	}
}

// engineCall records one Respond invocation.
type engineCall struct {
	history []conversation.Entry
	tools   []*packs.ToolDefinition
}

type engineStep func(history []conversation.Entry, tools []*packs.ToolDefinition) (*conversation.Reply, error)

// scriptEngine answers with its steps in order, then with a plain reply.
type scriptEngine struct {
	mu    sync.Mutex
	steps []engineStep
	calls []engineCall
}

func (e *scriptEngine) script(steps ...engineStep) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, steps...)
}

func (e *scriptEngine) Respond(ctx context.Context, history []conversation.Entry, tools []*packs.ToolDefinition) (*conversation.Reply, error) {
	e.mu.Lock()
	e.calls = append(e.calls, engineCall{history: history, tools: tools})
	var step engineStep
	if len(e.steps) > 0 {
		step, e.steps = e.steps[0], e.steps[1:]
	}
	e.mu.Unlock()

	if step == nil {
		return &conversation.Reply{Text: "ok"}, nil
	}
	return step(history, tools)
}

func (e *scriptEngine) recorded() []engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engineCall(nil), e.calls...)
}

// callTool requests a single tool call.
func callTool(id, name, args string) engineStep {
	return func([]conversation.Entry, []*packs.ToolDefinition) (*conversation.Reply, error) {
		return &conversation.Reply{ToolCalls: []conversation.ToolCall{{ID: id, Name: name, Arguments: args}}}, nil
	}
}

// echoLastResult replies with the most recent tool result.
func echoLastResult(history []conversation.Entry, _ []*packs.ToolDefinition) (*conversation.Reply, error) {
	last := history[len(history)-1]
	return &conversation.Reply{Text: "Here is what I found:\n\n" + last.Content}, nil
}

type fakeGate struct {
	mu      sync.Mutex
	verdict func(vp json.RawMessage) credential.Verdict
	seen    []json.RawMessage
}

func allowGate(permissions ...string) *fakeGate {
	return &fakeGate{verdict: func(json.RawMessage) credential.Verdict {
		return credential.Verdict{Valid: true, Permissions: permissions}
	}}
}

func denyGate(reason string) *fakeGate {
	return &fakeGate{verdict: func(json.RawMessage) credential.Verdict {
		return credential.Verdict{Valid: false, Reason: reason}
	}}
}

func (g *fakeGate) Verify(ctx context.Context, vp json.RawMessage) credential.Verdict {
	g.mu.Lock()
	g.seen = append(g.seen, vp)
	g.mu.Unlock()
	return g.verdict(vp)
}

func (g *fakeGate) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// bookstoreServer is a fake bookstore API counting downstream calls.
type bookstoreServer struct {
	*httptest.Server
	listCalls  atomic.Int32
	orderCalls atomic.Int32
}

func newBookstoreServer(t *testing.T) *bookstoreServer {
	t.Helper()
	b := &bookstoreServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /books", func(w http.ResponseWriter, r *http.Request) {
		b.listCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":1,"title":"Dune","author":"Frank Herbert","price":9.99,"stock":4},{"id":2,"title":"Neuromancer","author":"William Gibson","price":12.5,"stock":1}]`)
	})
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		b.orderCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"order_id":7,"book_title":"Dune","quantity":1,"total_price":9.99,"status":"pending"}`)
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// harness wires a Controller against fakes.
type harness struct {
	ctrl      *Controller
	conn      *fakeConn
	engine    *scriptEngine
	agentGate *fakeGate
	toolGate  *fakeGate
	books     *bookstoreServer
	done      chan error
}

const testAgentDID = "did:hedera:testnet:agent-0.0.1234"

func newHarness(t *testing.T, mutate ...func(*ControllerConfig)) *harness {
	t.Helper()

	books := newBookstoreServer(t)
	registry := packs.NewRegistry(testLogger())
	require.NoError(t, registry.RegisterBuiltinPack(builtins.BookstorePack(bookstore.NewClient(books.URL, time.Second))))

	h := &harness{
		conn:      newFakeConn(),
		engine:    &scriptEngine{},
		agentGate: allowGate(),
		toolGate:  allowGate(),
		books:     books,
		done:      make(chan error, 1),
	}

	cfg := ControllerConfig{
		Agent: Agent{DID: testAgentDID, Name: "BookGenie AI"},
		Policy: Policy{
			AllowInlineKeys:    true,
			DefaultPermissions: []string{"search_books", "place_order", "view_inventory", "check_order_status"},
			ToolPolicy:         packs.PolicyOpen,
			ToolAuthTimeout:    2 * time.Second,
		},
		Verifier:  identity.NewVerifier(nil),
		AgentGate: h.agentGate,
		ToolGate:  h.toolGate,
		Tools:     registry,
		Router:    packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: testLogger()}),
		Engine:    h.engine,
		Logger:    testLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.ctrl = NewController(cfg)
	return h
}

// start runs the session in the background.
func (h *harness) start(t *testing.T, id string) {
	t.Helper()
	go func() { h.done <- h.ctrl.Run(context.Background(), id, h.conn) }()
	t.Cleanup(h.conn.hangup)
}

// wait returns Run's result.
func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

// signedInit builds an init frame signed with a fresh Ed25519 key.
func signedInit(t *testing.T, did, challenge string, agentVP any) map[string]any {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	frame := map[string]any{
		"type":       TypeInit,
		"user_did":   did,
		"challenge":  challenge,
		"signature":  hex.EncodeToString(ed25519.Sign(priv, []byte(challenge))),
		"public_key": hex.EncodeToString(pub),
	}
	if agentVP != nil {
		frame["agent_vp"] = agentVP
	}
	return frame
}

// connect performs a successful handshake and returns the connected frame.
func (h *harness) connect(t *testing.T, id string, init map[string]any) testFrame {
	t.Helper()
	h.start(t, id)
	h.conn.send(t, init)
	status := h.conn.expect(t, TypeStatus)
	require.Equal(t, StatusInitialized, status.Message)
	return h.conn.expect(t, TypeConnected)
}

func userMessage(content string) map[string]any {
	return map[string]any{"type": TypeMessage, "content": content}
}

func toolAuthResponse(vps map[string]any) map[string]any {
	return map[string]any{"type": TypeToolAuthResponse, "vps": vps}
}
