package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Intellirim/inalign/internal/metrics"
	"github.com/Intellirim/inalign/internal/storage"
)

// Signer optionally signs record hashes. Absence of a signer never fails an
// append; signing is orthogonal to chain integrity.
type Signer interface {
	Sign(payload []byte) (signature string, signerID string)
}

// Ledger is the append-only record store. Appends to the same session are
// serialized through a per-session mutex because sequence_number and
// previous_hash assignment is a read-then-write; different sessions append
// concurrently with no coordination.
type Ledger struct {
	db     *storage.DB
	logger *slog.Logger
	signer Signer

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// New creates a Ledger over the shared database. signer may be nil.
func New(db *storage.DB, signer Signer, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:       db,
		logger:   logger,
		signer:   signer,
		sessions: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) sessionLock(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.sessions[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.sessions[sessionID] = m
	}
	return m
}

// AppendRequest carries the inputs for one ledger append.
type AppendRequest struct {
	SessionID         string
	Type              ActivityType
	Name              string
	UsedEntities      []string
	GeneratedEntities []string
	Attributes        map[string]string
	Agent             AgentRef
	// Timestamp is the captured event time. Zero means "now"; passing the
	// event's own time keeps record hashes reproducible for identical inputs.
	Timestamp time.Time
}

// Append creates, hashes, and persists the next record in the session chain.
// The record is durably written before Append returns; a write failure is
// session-fatal because an un-persisted gap breaks verification downstream.
func (l *Ledger) Append(ctx context.Context, req AppendRequest) (*Record, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("append: session id is required")
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("append: unknown activity type %q", req.Type)
	}

	lock := l.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	seq, prevHash, err := l.chainHead(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	rec := &Record{
		ID:                RecordID(req.SessionID, seq),
		SessionID:         req.SessionID,
		SequenceNumber:    seq,
		Timestamp:         ts.UTC(),
		ActivityType:      req.Type,
		ActivityName:      req.Name,
		Attributes:        req.Attributes,
		UsedEntities:      req.UsedEntities,
		GeneratedEntities: req.GeneratedEntities,
		Agent:             req.Agent,
		PreviousHash:      prevHash,
	}

	rec.RecordHash, err = ComputeHash(rec)
	if err != nil {
		return nil, err
	}

	if l.signer != nil {
		rec.Signature, rec.SignerID = l.signer.Sign([]byte(rec.RecordHash))
	}

	if err := l.insert(ctx, rec); err != nil {
		return nil, err
	}

	metrics.RecordsAppended.WithLabelValues(string(rec.ActivityType)).Inc()
	l.logger.Debug("record appended",
		"session", rec.SessionID, "seq", rec.SequenceNumber,
		"type", rec.ActivityType, "name", rec.ActivityName)
	return rec, nil
}

// chainHead returns the next sequence number and the hash of the current
// last record ("" when the session is empty).
func (l *Ledger) chainHead(ctx context.Context, sessionID string) (int, string, error) {
	var seq int
	var hash string
	err := l.db.QueryRowContext(ctx,
		`SELECT sequence_number, record_hash FROM records
		 WHERE session_id = ? ORDER BY sequence_number DESC LIMIT 1`,
		sessionID).Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", storage.WrapErr("reading chain head", err)
	}
	return seq + 1, hash, nil
}

func (l *Ledger) insert(ctx context.Context, r *Record) error {
	attrs, err := json.Marshal(r.Attributes)
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}
	used, err := json.Marshal(emptyIfNil(r.UsedEntities))
	if err != nil {
		return fmt.Errorf("encoding used entities: %w", err)
	}
	generated, err := json.Marshal(emptyIfNil(r.GeneratedEntities))
	if err != nil {
		return fmt.Errorf("encoding generated entities: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO records (id, session_id, sequence_number, timestamp,
			activity_type, activity_name, activity_attributes,
			used_entities, generated_entities,
			agent_id, agent_type, agent_name,
			previous_hash, record_hash, signature, signer_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.SequenceNumber, r.Timestamp.UTC().Format(hashTimeFormat),
		string(r.ActivityType), r.ActivityName, string(attrs),
		string(used), string(generated),
		r.Agent.ID, r.Agent.Type, r.Agent.Name,
		r.PreviousHash, r.RecordHash, r.Signature, r.SignerID,
	)
	return storage.WrapErr("inserting record", err)
}

// Records returns every record in the session in sequence order.
func (l *Ledger) Records(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, sequence_number, timestamp,
			activity_type, activity_name, activity_attributes,
			used_entities, generated_entities,
			agent_id, agent_type, agent_name,
			previous_hash, record_hash, signature, signer_id
		 FROM records WHERE session_id = ? ORDER BY sequence_number`,
		sessionID)
	if err != nil {
		return nil, storage.WrapErr("querying records", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, storage.WrapErr("iterating records", rows.Err())
}

// SessionsForAgent returns the distinct session IDs an agent has records in,
// oldest first. Used by the drift detector's baseline recomputation.
func (l *Ledger) SessionsForAgent(ctx context.Context, agentID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT session_id FROM records WHERE agent_id = ?
		 GROUP BY session_id ORDER BY MIN(timestamp)`,
		agentID)
	if err != nil {
		return nil, storage.WrapErr("querying agent sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storage.WrapErr("scanning session id", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, storage.WrapErr("iterating agent sessions", rows.Err())
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var r Record
	var ts, attrs, used, generated string
	var sig, signer sql.NullString
	if err := rows.Scan(&r.ID, &r.SessionID, &r.SequenceNumber, &ts,
		(*string)(&r.ActivityType), &r.ActivityName, &attrs,
		&used, &generated,
		&r.Agent.ID, &r.Agent.Type, &r.Agent.Name,
		&r.PreviousHash, &r.RecordHash, &sig, &signer); err != nil {
		return nil, storage.WrapErr("scanning record", err)
	}

	parsed, err := time.Parse(hashTimeFormat, ts)
	if err != nil {
		return nil, fmt.Errorf("record %s: bad timestamp %q: %w", r.ID, ts, err)
	}
	r.Timestamp = parsed
	r.Signature = sig.String
	r.SignerID = signer.String

	if attrs != "" && attrs != "null" {
		if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
			return nil, fmt.Errorf("record %s: bad attributes: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(used), &r.UsedEntities); err != nil {
		return nil, fmt.Errorf("record %s: bad used entities: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(generated), &r.GeneratedEntities); err != nil {
		return nil, fmt.Errorf("record %s: bad generated entities: %w", r.ID, err)
	}
	return &r, nil
}
