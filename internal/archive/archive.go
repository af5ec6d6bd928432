// Package archive copies sealed sessions to Postgres for long-term
// compliance retention: every record plus the session's Merkle root, bulk
// inserted with COPY. The SQLite ledger stays authoritative; the archive is
// the durable off-box copy an auditor can verify independently.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Intellirim/inalign/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived_sessions (
	session_id TEXT PRIMARY KEY,
	merkle_root TEXT NOT NULL,
	record_count INTEGER NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS archived_records (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	payload JSONB NOT NULL,
	record_hash TEXT NOT NULL,
	UNIQUE (session_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_archived_records_session
	ON archived_records(session_id, sequence_number);
`

// Archiver writes sealed sessions to Postgres.
type Archiver struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the archive schema exists.
func New(ctx context.Context, dsn string) (*Archiver, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}

	return &Archiver{pool: pool}, nil
}

// Close releases the connection pool.
func (a *Archiver) Close() {
	a.pool.Close()
}

// ArchiveSession copies a verified session's records and Merkle root into
// the archive in one transaction. Re-archiving the same session is an error:
// the ledger is append-only and a sealed session never changes, so a second
// archive attempt means something upstream is wrong.
func (a *Archiver) ArchiveSession(ctx context.Context, sessionID, merkleRoot string, records []ledger.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("archive: session %s has no records", sessionID)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO archived_sessions (session_id, merkle_root, record_count, archived_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, merkleRoot, len(records), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive: inserting session %s: %w", sessionID, err)
	}

	rows, err := RecordRows(records)
	if err != nil {
		return err
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"archived_records"},
		[]string{"id", "session_id", "sequence_number", "payload", "record_hash"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("archive: copying records for %s: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// RecordRows converts records into COPY rows: the full record serialized as
// JSON payload, with the hash broken out for indexed verification queries.
func RecordRows(records []ledger.Record) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for i := range records {
		rec := &records[i]
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("archive: encoding record %s: %w", rec.ID, err)
		}
		rows = append(rows, []any{
			rec.ID, rec.SessionID, rec.SequenceNumber, string(payload), rec.RecordHash,
		})
	}
	return rows, nil
}
