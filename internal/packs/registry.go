// ABOUTME: Thread-safe registry of built-in tools and their credential requirements.
// ABOUTME: Filters the advertised tool set by a session's permission set and tool policy.

package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrToolCollision indicates a tool name already exists in another pack.
var ErrToolCollision = errors.New("tool name collision")

// ErrInvalidTool indicates a tool without a name or handler.
var ErrInvalidTool = errors.New("invalid tool")

// Policy decides what an empty permission set exposes.
type Policy string

const (
	PolicyOpen   Policy = "open"   // empty set exposes every tool
	PolicyClosed Policy = "closed" // empty set exposes nothing
)

// Registry maintains the registered tools. Registration order is preserved
// so tool listings are stable.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*builtinEntry
	order    []string
	logger   *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		builtins: make(map[string]*builtinEntry),
		logger:   logger,
	}
}

// RegisterBuiltinPack registers a pack of built-in tools that execute in-process.
// Nothing is registered if any tool is invalid or collides with an existing one.
func (r *Registry) RegisterBuiltinPack(pack *BuiltinPack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(pack.Tools))
	for _, tool := range pack.Tools {
		if tool == nil || tool.Definition == nil || tool.Definition.Name == "" || tool.Handler == nil {
			return fmt.Errorf("%w in pack '%s'", ErrInvalidTool, pack.ID)
		}
		name := tool.Definition.Name
		if existing, exists := r.builtins[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, existing.PackID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' appears twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range pack.Tools {
		r.builtins[tool.Definition.Name] = &builtinEntry{Tool: tool, PackID: pack.ID}
		r.order = append(r.order, tool.Definition.Name)
	}

	r.logger.Info("=== BUILTIN PACK REGISTERED ===",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.order),
	)

	return nil
}

// GetBuiltinTool returns a builtin tool by name, or nil if not found.
func (r *Registry) GetBuiltinTool(name string) *BuiltinTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.builtins[name]; ok {
		return entry.Tool
	}
	return nil
}

// RequiredCredential returns the credential type a tool requires. Names that
// are not registered map to CredentialAgentPermission.
func (r *Registry) RequiredCredential(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.builtins[name]; ok && entry.Tool.Definition.RequiredCredential != "" {
		return entry.Tool.Definition.RequiredCredential
	}
	return CredentialAgentPermission
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// ListAvailable returns the tools a session may use. A non-empty permission
// set exposes the registered tools it names; names it lists that are not
// registered are ignored. An empty set is resolved by policy.
func (r *Registry) ListAvailable(permissions []string, policy Policy) []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(permissions) == 0 {
		if policy != PolicyOpen {
			return nil
		}
		result := make([]*ToolDefinition, 0, len(r.order))
		for _, name := range r.order {
			result = append(result, r.builtins[name].Tool.Definition)
		}
		return result
	}

	allowed := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		allowed[p] = struct{}{}
	}

	var result []*ToolDefinition
	for _, name := range r.order {
		if _, ok := allowed[name]; ok {
			result = append(result, r.builtins[name].Tool.Definition)
		}
	}
	return result
}
