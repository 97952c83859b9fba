// Package store persists the durable governance records — queue
// entries, blocked triggers, supervision and training sessions, agent
// proposals, shell execution sessions, and the event outbox — in a
// SQLite database. Records are append/update only; nothing is
// physically deleted during normal operation.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record ID does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a sql.DB connection to the warden database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs schema
// migrations. WAL mode keeps concurrent readers from blocking the
// single writer.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS queue_entries (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    trigger_type TEXT NOT NULL,
    execution_context TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    supervisor_type TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 1,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    expires_at INTEGER NOT NULL,
    execution_id TEXT,
    error_message TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_claim
    ON queue_entries (status, priority, expires_at, created_at);

CREATE TABLE IF NOT EXISTS blocked_triggers (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    maturity_at_block TEXT NOT NULL,
    confidence_score REAL NOT NULL DEFAULT 0,
    trigger_source TEXT NOT NULL DEFAULT '',
    trigger_type TEXT NOT NULL,
    trigger_context TEXT NOT NULL DEFAULT '',
    routing_decision TEXT NOT NULL DEFAULT '',
    block_reason TEXT NOT NULL,
    resolved INTEGER NOT NULL DEFAULT 0,
    resolved_at INTEGER,
    resolution_outcome TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_triggers_agent ON blocked_triggers (agent_id, resolved);

CREATE TABLE IF NOT EXISTS supervision_sessions (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    trigger_id TEXT,
    intervention_count INTEGER NOT NULL DEFAULT 0,
    interventions TEXT NOT NULL DEFAULT '[]',
    agent_actions TEXT NOT NULL DEFAULT '[]',
    outcomes TEXT NOT NULL DEFAULT '',
    supervisor_rating INTEGER NOT NULL DEFAULT 0,
    confidence_boost REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS agent_proposals (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    proposal_type TEXT NOT NULL,
    proposed_action TEXT NOT NULL,
    learning_objectives TEXT NOT NULL DEFAULT '[]',
    capability_gaps TEXT NOT NULL DEFAULT '[]',
    estimated_duration_hours REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'proposed',
    approved_by TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS training_sessions (
    id TEXT PRIMARY KEY,
    proposal_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    total_tasks INTEGER NOT NULL DEFAULT 0,
    performance_score REAL NOT NULL DEFAULT 0,
    errors_count INTEGER NOT NULL DEFAULT 0,
    promoted_to_intern INTEGER NOT NULL DEFAULT 0,
    capabilities_developed TEXT NOT NULL DEFAULT '[]',
    capability_gaps_remaining TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS shell_sessions (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    command TEXT NOT NULL,
    working_directory TEXT NOT NULL DEFAULT '',
    exit_code INTEGER NOT NULL,
    stdout TEXT NOT NULL DEFAULT '',
    stderr TEXT NOT NULL DEFAULT '',
    timed_out INTEGER NOT NULL DEFAULT 0,
    duration_seconds REAL NOT NULL DEFAULT 0,
    executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shell_agent ON shell_sessions (agent_id, executed_at);

CREATE TABLE IF NOT EXISTS outbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    published_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (published_at, id);
`
	_, err := s.db.Exec(schema)
	return err
}

// unix converts a time to the stored integer form.
func unix(t time.Time) int64 { return t.UTC().Unix() }

// fromUnix converts a stored integer back to UTC time.
func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}
