// ABOUTME: ConversationEngine contract between the session and a text/tool-calling provider
// ABOUTME: An empty tool list requests a text-only reply

package conversation

import (
	"context"

	"github.com/2389/helix-gateway/internal/packs"
)

// DefaultSystemPrompt frames the bookstore assistant.
const DefaultSystemPrompt = `You are BookOrderer, an AI agent that helps users order books from a bookstore.
You can:
- Search for books by title or author
- View the full inventory
- Place orders for books
- Check order status

Always confirm with the user before placing an order. Be friendly and helpful.`

// Reply is one engine response. Text may be empty when ToolCalls is not.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Engine produces the next reply for a history. When tools is empty the
// engine must not request tool calls; callers still discard any it returns.
type Engine interface {
	Respond(ctx context.Context, history []Entry, tools []*packs.ToolDefinition) (*Reply, error)
}
