// ABOUTME: Built-in tool types for tools that execute in-process.
// ABOUTME: A tool pairs its advertised definition with a handler and a required credential type.

package packs

import (
	"context"
	"encoding/json"
)

// Credential types a tool can require in its authorization request.
const (
	CredentialBookOrdering    = "BookOrderingCredential"
	CredentialAgentPermission = "AgentPermissionCredential"
)

// ToolDefinition is what the engine and the client see of a tool.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema json.RawMessage
	// RequiredCredential is the VC type the caller must present to run it.
	RequiredCredential string
}

// ToolHandler executes a built-in tool. The returned string is the summary
// fed back to the engine; an error is converted to a string by the router.
type ToolHandler func(ctx context.Context, input json.RawMessage) (string, error)

// BuiltinTool represents a tool that executes in the gateway process.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// builtinEntry stores a builtin tool with its pack ID for registry lookup.
type builtinEntry struct {
	Tool   *BuiltinTool
	PackID string
}
