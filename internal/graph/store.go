package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Intellirim/inalign/internal/storage"
)

// Store reads and writes graph nodes and edges in the shared database.
// Populate passes for the same session are serialized with a per-session
// mutex; upserts make re-runs idempotent regardless.
type Store struct {
	db     *storage.DB
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewStore creates a graph store over the shared database.
func NewStore(db *storage.DB, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		logger:   logger,
		sessions: make(map[string]*sync.Mutex),
	}
}

func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.sessions[sessionID] = m
	}
	return m
}

// UpsertNode inserts the node if its ID is new. Returns true when a row was
// created.
func (s *Store) UpsertNode(ctx context.Context, n *Node) (bool, error) {
	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return false, fmt.Errorf("encoding node attributes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_nodes (id, node_class, label, session_id, timestamp, attributes, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		n.ID, string(n.Class), n.Label, n.SessionID,
		n.Timestamp.UTC().Format(time.RFC3339Nano), string(attrs), n.RecordHash)
	if err != nil {
		return false, storage.WrapErr("upserting node", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// UpsertEdge inserts the edge if its (source, target, relation, session) key
// is new. Returns true when a row was created.
func (s *Store) UpsertEdge(ctx context.Context, e *Edge) (bool, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return false, fmt.Errorf("encoding edge attributes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_edges (source_id, target_id, relation, session_id, timestamp, confidence, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, target_id, relation, session_id) DO NOTHING`,
		e.SourceID, e.TargetID, string(e.Relation), e.SessionID,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Confidence, string(attrs))
	if err != nil {
		return false, storage.WrapErr("upserting edge", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// NodeByID loads one node. Returns nil when absent.
func (s *Store) NodeByID(ctx context.Context, id string) (*Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, node_class, label, session_id, timestamp, attributes, record_hash
		 FROM graph_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// NodesByClass returns the session's nodes of one class, oldest first.
func (s *Store) NodesByClass(ctx context.Context, sessionID string, class NodeClass) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, node_class, label, session_id, timestamp, attributes, record_hash
		 FROM graph_nodes WHERE session_id = ? AND node_class = ? ORDER BY timestamp`,
		sessionID, string(class))
	if err != nil {
		return nil, storage.WrapErr("querying nodes", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, storage.WrapErr("iterating nodes", rows.Err())
}

// NodesByLabel returns every node with the given class and label across all
// sessions. Used for cross-session entity linking.
func (s *Store) NodesByLabel(ctx context.Context, class NodeClass, label string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, node_class, label, session_id, timestamp, attributes, record_hash
		 FROM graph_nodes WHERE node_class = ? AND label = ?`,
		string(class), label)
	if err != nil {
		return nil, storage.WrapErr("querying nodes by label", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, storage.WrapErr("iterating nodes by label", rows.Err())
}

// OutgoingEdges returns edges leaving a node, optionally filtered by
// relation type.
func (s *Store) OutgoingEdges(ctx context.Context, nodeID string, relations []Relation) ([]Edge, error) {
	query := `SELECT source_id, target_id, relation, session_id, timestamp, confidence, attributes
		 FROM graph_edges WHERE source_id = ?`
	args := []any{nodeID}
	if len(relations) > 0 {
		query += " AND relation IN (" + placeholders(len(relations)) + ")"
		for _, r := range relations {
			args = append(args, string(r))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.WrapErr("querying edges", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, storage.WrapErr("iterating edges", rows.Err())
}

// IncomingEdges returns edges arriving at a node, optionally filtered by
// relation type.
func (s *Store) IncomingEdges(ctx context.Context, nodeID string, relations []Relation) ([]Edge, error) {
	query := `SELECT source_id, target_id, relation, session_id, timestamp, confidence, attributes
		 FROM graph_edges WHERE target_id = ?`
	args := []any{nodeID}
	if len(relations) > 0 {
		query += " AND relation IN (" + placeholders(len(relations)) + ")"
		for _, r := range relations {
			args = append(args, string(r))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.WrapErr("querying edges", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, storage.WrapErr("iterating edges", rows.Err())
}

// Counts returns the node and edge totals for a session.
func (s *Store) Counts(ctx context.Context, sessionID string) (nodes, edges int, err error) {
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM graph_nodes WHERE session_id = ?`, sessionID).Scan(&nodes); err != nil {
		return 0, 0, storage.WrapErr("counting nodes", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM graph_edges WHERE session_id = ?`, sessionID).Scan(&edges); err != nil {
		return 0, 0, storage.WrapErr("counting edges", err)
	}
	return nodes, edges, nil
}

func placeholders(n int) string {
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var n Node
	var ts, attrs string
	var recordHash sql.NullString
	if err := row.Scan(&n.ID, (*string)(&n.Class), &n.Label, &n.SessionID, &ts, &attrs, &recordHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, storage.WrapErr("scanning node", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("node %s: bad timestamp %q: %w", n.ID, ts, err)
	}
	n.Timestamp = parsed
	n.RecordHash = recordHash.String
	if attrs != "" && attrs != "null" {
		if err := json.Unmarshal([]byte(attrs), &n.Attributes); err != nil {
			return nil, fmt.Errorf("node %s: bad attributes: %w", n.ID, err)
		}
	}
	return &n, nil
}

func scanEdge(row rowScanner) (*Edge, error) {
	var e Edge
	var ts, attrs string
	if err := row.Scan(&e.SourceID, &e.TargetID, (*string)(&e.Relation), &e.SessionID, &ts, &e.Confidence, &attrs); err != nil {
		return nil, storage.WrapErr("scanning edge", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("edge %s->%s: bad timestamp %q: %w", e.SourceID, e.TargetID, ts, err)
	}
	e.Timestamp = parsed
	if attrs != "" && attrs != "null" {
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("edge %s->%s: bad attributes: %w", e.SourceID, e.TargetID, err)
		}
	}
	return &e, nil
}
