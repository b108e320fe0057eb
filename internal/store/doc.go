// Package store is the gateway's audit ledger on SQLite.
//
// # Tables
//
//   - audit_log: one row per authentication or authorization decision
//     (handshake, agent VP, each tool call), with outcome and reason.
//     Detail records where the verifying key came from, so inline-key
//     sessions stay distinguishable from directory-backed ones.
//   - ledger_events: a mirror of each session's committed history, ordered
//     by a per-session sequence number.
//
// The database is opened with modernc.org/sqlite (pure Go). A file path uses
// WAL mode; MemoryPath keeps a private in-memory database, mainly for tests.
package store
