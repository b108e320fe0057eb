// ABOUTME: Tests for tool execution through the router.
// ABOUTME: Covers unknown tools, handler errors, panics, and execution timeouts.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, tools ...*BuiltinTool) *Router {
	t.Helper()
	r := NewRegistry(testLogger())
	require.NoError(t, r.RegisterBuiltinPack(&BuiltinPack{ID: "test", Tools: tools}))
	return NewRouter(RouterConfig{Registry: r, Logger: testLogger(), Timeout: 100 * time.Millisecond})
}

func TestRouterExecute(t *testing.T) {
	var gotInput json.RawMessage
	echo := createTestTool("echo", "")
	echo.Handler = func(ctx context.Context, input json.RawMessage) (string, error) {
		gotInput = input
		return "echoed", nil
	}

	router := newTestRouter(t, echo)
	out := router.Execute(context.Background(), "echo", json.RawMessage(`{"q":1}`))

	assert.Equal(t, "echoed", out)
	assert.JSONEq(t, `{"q":1}`, string(gotInput))
}

func TestRouterExecute_UnknownTool(t *testing.T) {
	router := newTestRouter(t, createTestTool("echo", ""))
	assert.Equal(t, "Unknown tool: nope", router.Execute(context.Background(), "nope", nil))
}

func TestRouterExecute_HandlerError(t *testing.T) {
	failing := createTestTool("fail", "")
	failing.Handler = func(ctx context.Context, input json.RawMessage) (string, error) {
		return "", errors.New("bookstore down")
	}

	out := newTestRouter(t, failing).Execute(context.Background(), "fail", nil)
	assert.Equal(t, "Error executing fail: bookstore down", out)
}

func TestRouterExecute_Panic(t *testing.T) {
	panicky := createTestTool("boom", "")
	panicky.Handler = func(ctx context.Context, input json.RawMessage) (string, error) {
		panic("nil map")
	}

	out := newTestRouter(t, panicky).Execute(context.Background(), "boom", nil)
	assert.Equal(t, "Error executing boom: internal error", out)
}

func TestRouterExecute_Timeout(t *testing.T) {
	slow := createTestTool("slow", "")
	slow.Handler = func(ctx context.Context, input json.RawMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	out := newTestRouter(t, slow).Execute(context.Background(), "slow", nil)
	assert.Contains(t, out, "context deadline exceeded")
}

func TestNewRouter_DefaultTimeout(t *testing.T) {
	router := NewRouter(RouterConfig{Registry: NewRegistry(testLogger()), Logger: testLogger()})
	assert.Equal(t, DefaultTimeout, router.timeout)
}
