// ABOUTME: Executes tool calls against registered built-in handlers.
// ABOUTME: Every outcome, including unknown tools, handler errors, and panics, becomes a result string.

package packs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// Router dispatches tool calls to their handlers.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Router{
		registry: cfg.Registry,
		logger:   cfg.Logger,
		timeout:  timeout,
	}
}

// Execute runs toolName with args and returns a summary string. It never
// returns an error: failures are described in the returned text.
func (r *Router) Execute(ctx context.Context, toolName string, args json.RawMessage) (result string) {
	builtin := r.registry.GetBuiltinTool(toolName)
	if builtin == nil {
		r.logger.Debug("tool not found in registry", "tool_name", toolName)
		return "Unknown tool: " + toolName
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("builtin tool panicked", "tool_name", toolName, "panic", rec)
			result = fmt.Sprintf("Error executing %s: internal error", toolName)
		}
	}()

	r.logger.Info("→ dispatching to builtin", "tool_name", toolName)

	output, err := builtin.Handler(ctx, args)
	if err != nil {
		r.logger.Warn("builtin tool error", "tool_name", toolName, "error", err)
		return fmt.Sprintf("Error executing %s: %v", toolName, err)
	}

	r.logger.Info("← builtin responded", "tool_name", toolName, "result_len", len(output))
	return output
}
