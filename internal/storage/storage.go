// Package storage opens the shared SQLite database backing the provenance
// ledger, the knowledge graph, and agent baselines. Schema creation is
// idempotent and safe to run on every startup.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	activity_type TEXT NOT NULL,
	activity_name TEXT NOT NULL,
	activity_attributes TEXT,
	used_entities TEXT,
	generated_entities TEXT,
	agent_id TEXT NOT NULL,
	agent_type TEXT,
	agent_name TEXT,
	previous_hash TEXT NOT NULL,
	record_hash TEXT NOT NULL,
	signature TEXT,
	signer_id TEXT,
	UNIQUE(session_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, sequence_number);
CREATE INDEX IF NOT EXISTS idx_records_agent ON records(agent_id);

CREATE TABLE IF NOT EXISTS graph_nodes (
	id TEXT PRIMARY KEY,
	node_class TEXT NOT NULL,
	label TEXT NOT NULL,
	session_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	attributes TEXT,
	record_hash TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_session ON graph_nodes(session_id);
CREATE INDEX IF NOT EXISTS idx_nodes_class ON graph_nodes(node_class);
CREATE INDEX IF NOT EXISTS idx_nodes_label ON graph_nodes(label);

CREATE TABLE IF NOT EXISTS graph_edges (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	session_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	attributes TEXT,
	PRIMARY KEY (source_id, target_id, relation, session_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_session ON graph_edges(session_id);
CREATE INDEX IF NOT EXISTS idx_edges_source ON graph_edges(source_id, relation);
CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(target_id, relation);

CREATE TABLE IF NOT EXISTS agent_baselines (
	agent_id TEXT PRIMARY KEY,
	session_count INTEGER NOT NULL,
	tool_stats TEXT NOT NULL,
	avg_session_length REAL NOT NULL,
	avg_interval_seconds REAL NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Error wraps a backing-store failure. Operations that hit one must not
// silently continue: an un-persisted ledger record breaks chain verification
// for every record after it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// WrapErr returns a *Error around err, or nil if err is nil.
func WrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// DB is the shared handle for all inalign persistence.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the inalign database at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, WrapErr("open", err)
	}

	// WAL keeps readers (verify, scan) off the writers' backs.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, WrapErr("set WAL mode", fmt.Errorf("%w (also: close: %v)", err, cerr))
		}
		return nil, WrapErr("set WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, WrapErr("set busy timeout", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, WrapErr("create schema", fmt.Errorf("%w (also: close: %v)", err, cerr))
		}
		return nil, WrapErr("create schema", err)
	}

	return &DB{DB: db, logger: logger}, nil
}

// Logger returns the logger this DB was opened with.
func (d *DB) Logger() *slog.Logger { return d.logger }
