package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Intellirim/inalign/internal/ledger"
	"github.com/Intellirim/inalign/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, logger), ledger.New(db, nil, logger)
}

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type event struct {
	typ   ledger.ActivityType
	name  string
	attrs map[string]string
}

// appendEvents writes a fixed-timestamp session and returns its records.
func appendEvents(t *testing.T, l *ledger.Ledger, sessionID string, events []event) []ledger.Record {
	t.Helper()
	ctx := context.Background()
	for i, ev := range events {
		_, err := l.Append(ctx, ledger.AppendRequest{
			SessionID:  sessionID,
			Type:       ev.typ,
			Name:       ev.name,
			Attributes: ev.attrs,
			Agent:      ledger.AgentRef{ID: "agent-1", Name: "researcher"},
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	records, err := l.Records(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestPopulateFromLedger(t *testing.T) {
	store, l := newTestStore(t)
	ctx := context.Background()

	records := appendEvents(t, l, "s1", []event{
		{ledger.ActivityToolCall, "read_file", map[string]string{"file_path": "/workspace/a.md"}},
		{ledger.ActivityLLMRequest, "claude", nil},
		{ledger.ActivityDecision, "route", nil},
	})

	res, err := store.PopulateFromLedger(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	// 1 session + 1 agent + 3 call nodes
	if res.NodesCreated != 5 {
		t.Errorf("nodes created = %d, want 5", res.NodesCreated)
	}
	// per record: performed + partOf; plus 2 precedes
	if res.EdgesCreated != 8 {
		t.Errorf("edges created = %d, want 8", res.EdgesCreated)
	}

	// call node classes follow the activity type
	n, err := store.NodeByID(ctx, CallNodeID("s1", 1))
	if err != nil {
		t.Fatal(err)
	}
	if n == nil || n.Class != NodeModelInvocation {
		t.Errorf("llm_request node class = %v, want %v", n, NodeModelInvocation)
	}
	n, err = store.NodeByID(ctx, CallNodeID("s1", 2))
	if err != nil {
		t.Fatal(err)
	}
	if n == nil || n.Class != NodeDecision {
		t.Errorf("decision node class = %v, want %v", n, NodeDecision)
	}
}

func TestPopulateIdempotent(t *testing.T) {
	store, l := newTestStore(t)
	ctx := context.Background()

	records := appendEvents(t, l, "s1", []event{
		{ledger.ActivityToolCall, "read_file", map[string]string{"file_path": "/workspace/a.md"}},
		{ledger.ActivityToolCall, "write_file", map[string]string{"file_path": "/workspace/b.md"}},
	})

	first, err := store.PopulateFromLedger(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	firstEnt, err := store.PopulateEntities(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if first.NodesCreated == 0 || firstEnt.NodesCreated == 0 {
		t.Fatal("first pass created nothing")
	}

	second, err := store.PopulateFromLedger(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	secondEnt, err := store.PopulateEntities(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if second.NodesCreated != 0 || second.EdgesCreated != 0 {
		t.Errorf("second structural pass created %d nodes, %d edges, want 0",
			second.NodesCreated, second.EdgesCreated)
	}
	if secondEnt.NodesCreated != 0 || secondEnt.EdgesCreated != 0 {
		t.Errorf("second entity pass created %d nodes, %d edges, want 0",
			secondEnt.NodesCreated, secondEnt.EdgesCreated)
	}
	// duplicates are silently absorbed, never reported as skipped
	if second.Skipped != 0 || secondEnt.Skipped != 0 {
		t.Errorf("re-population reported skipped records: %d structural, %d entity, want 0",
			second.Skipped, secondEnt.Skipped)
	}

	nodes, edges, err := store.Counts(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	wantNodes := first.NodesCreated + firstEnt.NodesCreated
	wantEdges := first.EdgesCreated + firstEnt.EdgesCreated
	if nodes != wantNodes || edges != wantEdges {
		t.Errorf("counts = %d nodes, %d edges; want %d, %d", nodes, edges, wantNodes, wantEdges)
	}
}

func TestPopulateEntitiesLineage(t *testing.T) {
	store, l := newTestStore(t)
	ctx := context.Background()

	records := appendEvents(t, l, "s1", []event{
		{ledger.ActivityToolCall, "read_file", map[string]string{"file_path": "/home/user/.env"}},
		{ledger.ActivityToolCall, "read_file", map[string]string{"file_path": "/workspace/notes.md"}},
		{ledger.ActivityToolCall, "write_file", map[string]string{"file_path": "/tmp/out.md"}},
	})

	if _, err := store.PopulateFromLedger(ctx, records); err != nil {
		t.Fatal(err)
	}
	if _, err := store.PopulateEntities(ctx, records); err != nil {
		t.Fatal(err)
	}

	// the written entity derives from both prior reads
	outID := EntityNodeID("s1", "/tmp/out.md")
	edges, err := store.OutgoingEdges(ctx, outID, []Relation{RelDerivedFrom})
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 {
		t.Fatalf("got %d derivedFrom edges, want 2", len(edges))
	}

	// most recent read gets the highest confidence
	byTarget := make(map[string]float64)
	for _, e := range edges {
		byTarget[e.TargetID] = e.Confidence
	}
	notesConf := byTarget[EntityNodeID("s1", "/workspace/notes.md")]
	envConf := byTarget[EntityNodeID("s1", "/home/user/.env")]
	if notesConf != 0.9 {
		t.Errorf("most recent read confidence = %v, want 0.9", notesConf)
	}
	if envConf >= notesConf {
		t.Errorf("older read confidence %v not below newer %v", envConf, notesConf)
	}

	// the credential file is classified critical
	env, err := store.NodeByID(ctx, EntityNodeID("s1", "/home/user/.env"))
	if err != nil {
		t.Fatal(err)
	}
	if env == nil || env.Attributes["sensitivity"] != string(SensitivityCritical) {
		t.Errorf("/home/user/.env sensitivity = %v, want CRITICAL", env)
	}
}

func TestLinkCrossSession(t *testing.T) {
	store, l := newTestStore(t)
	ctx := context.Background()

	for _, session := range []string{"s1", "s2"} {
		records := appendEvents(t, l, session, []event{
			{ledger.ActivityToolCall, "read_file", map[string]string{"file_path": "/shared/secret.pem"}},
		})
		if _, err := store.PopulateFromLedger(ctx, records); err != nil {
			t.Fatal(err)
		}
		if _, err := store.PopulateEntities(ctx, records); err != nil {
			t.Fatal(err)
		}
	}

	linked, err := store.LinkCrossSession(ctx, "s2")
	if err != nil {
		t.Fatal(err)
	}
	if linked != 1 {
		t.Errorf("linked = %d, want 1", linked)
	}

	// linking again, or from the other side, finds the same canonical row
	again, err := store.LinkCrossSession(ctx, "s2")
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.LinkCrossSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 || other != 0 {
		t.Errorf("re-linking created edges: again=%d other=%d, want 0", again, other)
	}

	// the single canonical edge answers the query from either session's
	// entity, regardless of which ID sorted first
	ent1 := EntityNodeID("s1", "/shared/secret.pem")
	ent2 := EntityNodeID("s2", "/shared/secret.pem")
	for _, pair := range [][2]string{{ent1, ent2}, {ent2, ent1}} {
		from, want := pair[0], pair[1]
		paths, err := store.Query(ctx, from, 3, []Relation{RelSameAs})
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, p := range paths {
			if p.NodeID == want {
				found = true
			}
		}
		if !found {
			t.Errorf("sameAs query from %s did not reach %s", from, want)
		}
	}
}

func TestQueryTraversal(t *testing.T) {
	store, l := newTestStore(t)
	ctx := context.Background()

	records := appendEvents(t, l, "s1", []event{
		{ledger.ActivityToolCall, "read_file", map[string]string{"file_path": "/workspace/a.md"}},
		{ledger.ActivityToolCall, "write_file", map[string]string{"file_path": "/workspace/b.md"}},
		{ledger.ActivityToolCall, "bash", map[string]string{"command": "cat /workspace/b.md"}},
	})
	if _, err := store.PopulateFromLedger(ctx, records); err != nil {
		t.Fatal(err)
	}
	if _, err := store.PopulateEntities(ctx, records); err != nil {
		t.Fatal(err)
	}

	agentID := AgentNodeID("agent-1")
	paths, err := store.Query(ctx, agentID, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no nodes reachable from the agent")
	}

	// every result carries a coherent path back to the start
	for _, p := range paths {
		if len(p.Path) != p.Depth+1 {
			t.Errorf("node %s: path length %d, depth %d", p.NodeID, len(p.Path), p.Depth)
		}
		if p.Path[0] != agentID {
			t.Errorf("node %s: path does not start at the agent", p.NodeID)
		}
		if len(p.Relations) != p.Depth {
			t.Errorf("node %s: %d relations for depth %d", p.NodeID, len(p.Relations), p.Depth)
		}
	}

	// depth 1 only reaches the performed calls
	shallow, err := store.Query(ctx, agentID, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range shallow {
		if p.Depth > 1 {
			t.Errorf("depth-1 query returned node at depth %d", p.Depth)
		}
	}

	// relation filter restricts expansion
	filtered, err := store.Query(ctx, agentID, 0, []Relation{RelPerformed})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 3 {
		t.Errorf("performed-only query reached %d nodes, want 3", len(filtered))
	}

	if _, err := store.Query(ctx, "missing-node", 0, nil); err == nil {
		t.Error("expected error for unknown start node")
	}
}

func TestQueryDepthClamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// a precedes-chain longer than the default depth
	const chainLen = MaxQueryDepth + 3
	for i := 0; i <= chainLen; i++ {
		id := fmt.Sprintf("n%d", i)
		if _, err := store.UpsertNode(ctx, &Node{
			ID: id, Class: NodeToolCall, Label: id, SessionID: "s1", Timestamp: base,
		}); err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			if _, err := store.UpsertEdge(ctx, &Edge{
				SourceID: fmt.Sprintf("n%d", i-1), TargetID: id, Relation: RelPrecedes,
				SessionID: "s1", Timestamp: base, Confidence: 1,
			}); err != nil {
				t.Fatal(err)
			}
		}
	}

	// a request beyond the ceiling still searches the full ceiling depth
	paths, err := store.Query(ctx, "n0", 50, []Relation{RelPrecedes})
	if err != nil {
		t.Fatal(err)
	}
	deepest := 0
	for _, p := range paths {
		if p.Depth > deepest {
			deepest = p.Depth
		}
	}
	if deepest != MaxQueryDepth {
		t.Errorf("deepest node at depth %d, want the %d ceiling", deepest, MaxQueryDepth)
	}
}

func TestQueryCycleSafe(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// two nodes pointing at each other
	for _, id := range []string{"n1", "n2"} {
		if _, err := store.UpsertNode(ctx, &Node{
			ID: id, Class: NodeEntity, Label: id, SessionID: "s1", Timestamp: base,
		}); err != nil {
			t.Fatal(err)
		}
	}
	for _, pair := range [][2]string{{"n1", "n2"}, {"n2", "n1"}} {
		if _, err := store.UpsertEdge(ctx, &Edge{
			SourceID: pair[0], TargetID: pair[1], Relation: RelSameAs,
			SessionID: "s1", Timestamp: base, Confidence: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := store.Query(ctx, "n1", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Errorf("cycle traversal returned %d nodes, want 1", len(paths))
	}
}
