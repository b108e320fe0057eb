// ABOUTME: SQLite audit ledger using modernc.org/sqlite
// ABOUTME: Opens the database, applies pragmas, and creates the audit and ledger schema

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeFormat is fixed-width so lexical order matches time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore persists audit entries and ledger events.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the ledger at path. Parent directories are
// created as needed; MemoryPath keeps everything in process.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == MemoryPath {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			actor_did   TEXT NOT NULL,
			action      TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			reason      TEXT,
			ts          TEXT NOT NULL,
			detail_json TEXT,

			CHECK (outcome IN ('allowed', 'denied'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id, ts);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_did);

		CREATE TABLE IF NOT EXISTS ledger_events (
			event_id     TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			direction    TEXT NOT NULL,
			author       TEXT NOT NULL,
			timestamp    TEXT NOT NULL,
			type         TEXT NOT NULL,
			text         TEXT,
			tool_name    TEXT,
			tool_call_id TEXT,

			UNIQUE (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger_events(session_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
