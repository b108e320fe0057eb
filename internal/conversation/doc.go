// Package conversation holds the engine contract and the conversation history.
//
// # History
//
// History is append-only. An assistant entry that requests tool calls must
// be followed by one tool entry per call, in request order, before any other
// entry is accepted. A session stages each turn on a Clone and adopts the
// clone only when the turn completes, so a failed turn leaves no partial
// entries behind.
//
// # Engines
//
// Engine is implemented by OpenAIEngine, which speaks the chat completions
// API to either an Azure OpenAI deployment or the public OpenAI endpoint.
// Passing no tools produces a text-only request.
package conversation
