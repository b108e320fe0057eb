// Package session runs the chat protocol for one connection at a time.
//
// # Lifecycle
//
// A session moves through
//
//	Handshaking -> Authenticated -> TurnIdle -> AwaitingEngine
//	  -> AwaitingToolAuth -> ExecutingTools -> AwaitingEngine -> TurnIdle ... -> Closed
//
// The first frame must be init. Its signature proof is checked by an
// IdentityVerifier, and an optional agent VP fixes the permission set for the
// life of the session. The advertised tool list is derived from that set.
//
// # Turns
//
// Each message frame starts a turn. If the engine asks for tools, exactly one
// tool_auth_request is sent listing every call. The client answers with one
// VP per call id; each call is verified and executed in request order, and a
// call without a valid VP is answered with a blocked-call result instead of
// running. A final engine call is then made with no tools.
//
// Turn entries are staged on a copy of the history and committed when the
// turn completes. A disconnect, or an engine error before any tool ran,
// leaves no partial turn behind. If the text-only follow-up fails after tools
// ran, the turn is committed up to the last tool result.
//
// # Errors
//
// Handshake failures and protocol violations are reported with an error frame
// and close the connection. Engine failures are reported and the session
// continues.
package session
