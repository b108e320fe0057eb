// Package gateway orchestrates the helix-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the helix-gateway server.
// It builds the identity verifier, credential gates, the bookstore tool pack,
// the text-generation engine, the session controller, and the optional audit
// ledger, then serves them over a single HTTP listener.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config     *config.Config
//	    controller *session.Controller
//	    sessions   *session.Registry
//	    store      *store.SQLiteStore
//	    httpServer *http.Server
//	    // ... and shutdown state
//	}
//
// # Endpoints
//
//   - GET /ws/chat - Chat WebSocket, session ID generated
//   - GET /ws/chat/{session_id} - Chat WebSocket with a client-chosen session ID
//   - GET /api/sessions - Live sessions (JWT protected when auth.jwt_secret is set)
//   - GET /api/sessions/{session_id}/audit - Audit ledger entries for a session
//   - GET /api/sessions/{session_id}/events - Mirrored conversation events
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings the ledger)
//
// The /api/sessions/{id}/audit and /events endpoints return 503 when no
// database path is configured.
//
// # WebSocket Adapter
//
// Each upgraded connection is wrapped in a session.Conn. A reader goroutine
// feeds frames into a channel so a per-read deadline, such as the tool
// authorization timeout, does not tear down the socket. Close codes map to
// WebSocket status codes:
//
//	session.CloseNormal          -> 1000
//	session.ClosePolicyViolation -> 1008
//	session.CloseInternalError   -> 1011
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown stops the HTTP server, cancels every live session, and closes the
// ledger once.
package gateway
