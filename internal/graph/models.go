// Package graph stores the typed knowledge graph derived from ledger
// records: who performed what, which entities were touched, and how data
// flowed between them. Nodes and edges are re-derivable from the ledger at
// any time; population is idempotent and safe to re-run.
package graph

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeClass is the closed set of node types.
type NodeClass string

const (
	NodeAgent           NodeClass = "Agent"
	NodeSession         NodeClass = "Session"
	NodeToolCall        NodeClass = "ToolCall"
	NodeEntity          NodeClass = "Entity"
	NodeDecision        NodeClass = "Decision"
	NodeRisk            NodeClass = "Risk"
	NodePolicy          NodeClass = "Policy"
	NodeModelInvocation NodeClass = "AIModelInvocation"
)

// Relation is the closed set of edge types.
type Relation string

const (
	RelPerformed   Relation = "performed"
	RelUsed        Relation = "used"
	RelGenerated   Relation = "generated"
	RelTriggeredBy Relation = "triggeredBy"
	RelDetected    Relation = "detected"
	RelViolates    Relation = "violates"
	RelPrecedes    Relation = "precedes"
	RelDerivedFrom Relation = "derivedFrom"
	RelSignedBy    Relation = "signedBy"
	RelSameAs      Relation = "sameAs"
	RelPartOf      Relation = "partOf"
)

// Node is a knowledge-graph vertex.
type Node struct {
	ID         string            `json:"id"`
	Class      NodeClass         `json:"node_class"`
	Label      string            `json:"label"`
	SessionID  string            `json:"session_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordHash string            `json:"record_hash,omitempty"` // ledger back-reference
}

// Edge is a typed, weighted link between two nodes. Edges are uniquely keyed
// by (source, target, relation, session) so re-derivation never duplicates.
type Edge struct {
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Relation   Relation          `json:"relation"`
	SessionID  string            `json:"session_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Confidence float64           `json:"confidence"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PathResult is one node reached by a traversal, with the path that led
// there.
type PathResult struct {
	NodeID    string     `json:"node_id"`
	Node      *Node      `json:"node,omitempty"`
	Depth     int        `json:"depth"`
	Path      []string   `json:"path"`      // node ids from start to here
	Relations []Relation `json:"relations"` // edge relations along the path
}

// graphNamespace seeds deterministic node IDs so re-population upserts the
// same vertices instead of minting new ones.
var graphNamespace = uuid.MustParse("b3a1f5c2-8d44-4e0b-9c77-2f1e6a0d4c29")

func nodeID(parts ...string) string {
	return uuid.NewSHA1(graphNamespace, []byte(strings.Join(parts, "|"))).String()
}

// AgentNodeID returns the deterministic node ID for an agent.
func AgentNodeID(agentID string) string { return nodeID("agent", agentID) }

// SessionNodeID returns the deterministic node ID for a session.
func SessionNodeID(sessionID string) string { return nodeID("session", sessionID) }

// CallNodeID returns the deterministic node ID for the record at a session
// position (ToolCall, Decision, or AIModelInvocation node).
func CallNodeID(sessionID string, sequence int) string {
	return nodeID("call", sessionID, strconv.Itoa(sequence))
}

// EntityNodeID returns the deterministic node ID for a normalized entity
// identifier (file path or URL). The same path always maps to the same node
// within a session.
func EntityNodeID(sessionID, normalized string) string {
	return nodeID("entity", sessionID, normalized)
}
