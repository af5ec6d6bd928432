package graph

import (
	"context"
	"fmt"

	"github.com/Intellirim/inalign/internal/ledger"
)

// PopulateResult summarizes one populate pass.
type PopulateResult struct {
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
	Skipped      int `json:"skipped"` // malformed records skipped, not fatal
}

func (r *PopulateResult) merge(other PopulateResult) {
	r.NodesCreated += other.NodesCreated
	r.EdgesCreated += other.EdgesCreated
	r.Skipped += other.Skipped
}

// callNodeClass maps an activity type to the graph class of its call node.
func callNodeClass(t ledger.ActivityType) NodeClass {
	switch t {
	case ledger.ActivityLLMRequest, ledger.ActivityLLMResponse:
		return NodeModelInvocation
	case ledger.ActivityDecision:
		return NodeDecision
	default:
		return NodeToolCall
	}
}

// PopulateFromLedger derives the call-level structure for a session: one
// node per record, Agent -performed-> call, call -partOf-> Session, and a
// precedes chain between consecutive calls. Safe to re-run; deterministic
// node IDs and the edge uniqueness key make every upsert idempotent.
func (s *Store) PopulateFromLedger(ctx context.Context, records []ledger.Record) (PopulateResult, error) {
	var result PopulateResult
	if len(records) == 0 {
		return result, nil
	}

	sessionID := records[0].SessionID
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sessionNode := &Node{
		ID:        SessionNodeID(sessionID),
		Class:     NodeSession,
		Label:     sessionID,
		SessionID: sessionID,
		Timestamp: records[0].Timestamp,
	}
	created, err := s.UpsertNode(ctx, sessionNode)
	if err != nil {
		return result, err
	}
	if created {
		result.NodesCreated++
	}

	prevCallID := ""
	for i := range records {
		rec := &records[i]

		agentID := rec.Agent.ID
		if agentID == "" {
			agentID = "unknown"
		}
		agentNode := &Node{
			ID:        AgentNodeID(agentID),
			Class:     NodeAgent,
			Label:     agentID,
			SessionID: sessionID,
			Timestamp: rec.Timestamp,
			Attributes: map[string]string{
				"agent_type": rec.Agent.Type,
				"agent_name": rec.Agent.Name,
			},
		}
		if created, err := s.UpsertNode(ctx, agentNode); err != nil {
			return result, err
		} else if created {
			result.NodesCreated++
		}

		callID := CallNodeID(sessionID, rec.SequenceNumber)
		callNode := &Node{
			ID:        callID,
			Class:     callNodeClass(rec.ActivityType),
			Label:     rec.ActivityName,
			SessionID: sessionID,
			Timestamp: rec.Timestamp,
			Attributes: map[string]string{
				"activity_type": string(rec.ActivityType),
				"sequence":      fmt.Sprintf("%d", rec.SequenceNumber),
			},
			RecordHash: rec.RecordHash,
		}
		if created, err := s.UpsertNode(ctx, callNode); err != nil {
			return result, err
		} else if created {
			result.NodesCreated++
		}

		edges := []*Edge{
			{SourceID: agentNode.ID, TargetID: callID, Relation: RelPerformed,
				SessionID: sessionID, Timestamp: rec.Timestamp, Confidence: 1},
			{SourceID: callID, TargetID: sessionNode.ID, Relation: RelPartOf,
				SessionID: sessionID, Timestamp: rec.Timestamp, Confidence: 1},
		}
		if prevCallID != "" {
			edges = append(edges, &Edge{
				SourceID: prevCallID, TargetID: callID, Relation: RelPrecedes,
				SessionID: sessionID, Timestamp: rec.Timestamp, Confidence: 1,
			})
		}
		for _, e := range edges {
			if created, err := s.UpsertEdge(ctx, e); err != nil {
				return result, err
			} else if created {
				result.EdgesCreated++
			}
		}
		prevCallID = callID
	}

	return result, nil
}

// derivedLookback bounds how many prior reads a write is checked against for
// lineage edges.
const derivedLookback = 10

// PopulateEntities extracts file/URL entities from each record's structured
// tool arguments, classifies their sensitivity, and links them to the call
// nodes with used/generated edges. A write following a read of a different
// entity within the lookback window gets a derivedFrom lineage edge with
// confidence decaying by recency — a heuristic signal, not a proof.
//
// Extraction is best-effort per record: a record whose arguments cannot be
// used is skipped and logged, never fatal to the pass.
func (s *Store) PopulateEntities(ctx context.Context, records []ledger.Record) (PopulateResult, error) {
	var result PopulateResult
	if len(records) == 0 {
		return result, nil
	}

	sessionID := records[0].SessionID
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// recent reads, most recent last
	type readRef struct {
		entityID string
		value    string
	}
	var recentReads []readRef

	for i := range records {
		rec := &records[i]
		if rec.ActivityType != ledger.ActivityToolCall &&
			rec.ActivityType != ledger.ActivityFileRead &&
			rec.ActivityType != ledger.ActivityFileWrite {
			continue
		}

		refs := ExtractRefs(rec.Attributes)
		if len(refs) == 0 {
			continue
		}

		tool := rec.ActivityName
		isRead := IsReadTool(tool) || rec.ActivityType == ledger.ActivityFileRead
		isWrite := IsWriteTool(tool) || rec.ActivityType == ledger.ActivityFileWrite
		isNetwork := IsNetworkTool(tool)
		isShell := IsShellTool(tool)
		if isShell {
			// shell invocations both read and write as far as lineage is
			// concerned; the command itself decides, which we cannot see
			isRead, isWrite = true, true
		}

		callID := CallNodeID(sessionID, rec.SequenceNumber)

		for _, ref := range refs {
			kind := "file"
			if ref.IsURL {
				kind = "url"
			}
			entity := &Node{
				ID:        EntityNodeID(sessionID, ref.Value),
				Class:     NodeEntity,
				Label:     ref.Value,
				SessionID: sessionID,
				Timestamp: rec.Timestamp,
				Attributes: map[string]string{
					"kind":        kind,
					"sensitivity": string(ClassifySensitivity(ref.Value)),
					"ref_hash":    ledger.HashEntityRef(ref.Value),
				},
			}
			created, err := s.UpsertNode(ctx, entity)
			if err != nil {
				s.logger.Warn("skipping malformed entity", "session", sessionID,
					"seq", rec.SequenceNumber, "value", ref.Value, "error", err)
				result.Skipped++
				continue
			}
			if created {
				result.NodesCreated++
			}

			relation := RelUsed
			if isWrite && !ref.IsURL {
				relation = RelGenerated
			}
			if isNetwork || ref.IsURL {
				relation = RelUsed
			}
			edge := &Edge{
				SourceID: callID, TargetID: entity.ID, Relation: relation,
				SessionID: sessionID, Timestamp: rec.Timestamp, Confidence: 1,
			}
			if created, err := s.UpsertEdge(ctx, edge); err != nil {
				return result, err
			} else if created {
				result.EdgesCreated++
			}

			if relation == RelGenerated {
				// lineage: link back to recent reads of other entities
				for j := len(recentReads) - 1; j >= 0; j-- {
					read := recentReads[j]
					if read.entityID == entity.ID {
						continue
					}
					distance := len(recentReads) - 1 - j
					confidence := 0.9 - 0.08*float64(distance)
					if confidence < 0.1 {
						confidence = 0.1
					}
					lineage := &Edge{
						SourceID: entity.ID, TargetID: read.entityID,
						Relation: RelDerivedFrom, SessionID: sessionID,
						Timestamp: rec.Timestamp, Confidence: confidence,
					}
					if created, err := s.UpsertEdge(ctx, lineage); err != nil {
						return result, err
					} else if created {
						result.EdgesCreated++
					}
				}
			}

			if isRead && !ref.IsURL {
				recentReads = append(recentReads, readRef{entityID: entity.ID, value: ref.Value})
				if len(recentReads) > derivedLookback {
					recentReads = recentReads[len(recentReads)-derivedLookback:]
				}
			}
		}
	}

	return result, nil
}

// LinkCrossSession links this session's file entities to same-path entities
// in other sessions with sameAs edges, enabling "was this secret touched
// before" queries across the whole corpus. Edge direction is canonicalized
// (lexicographically smaller node ID as source) so repeated linking from
// either side lands on the same row.
func (s *Store) LinkCrossSession(ctx context.Context, sessionID string) (int, error) {
	entities, err := s.NodesByClass(ctx, sessionID, NodeEntity)
	if err != nil {
		return 0, err
	}

	linked := 0
	for i := range entities {
		ent := &entities[i]
		if ent.Attributes["kind"] != "file" {
			continue
		}
		peers, err := s.NodesByLabel(ctx, NodeEntity, ent.Label)
		if err != nil {
			return linked, err
		}
		for j := range peers {
			peer := &peers[j]
			if peer.SessionID == sessionID {
				continue
			}
			src, dst := ent.ID, peer.ID
			if dst < src {
				src, dst = dst, src
			}
			edge := &Edge{
				SourceID: src, TargetID: dst, Relation: RelSameAs,
				SessionID: sessionID, Timestamp: ent.Timestamp, Confidence: 1,
				Attributes: map[string]string{"path": ent.Label},
			}
			if created, err := s.UpsertEdge(ctx, edge); err != nil {
				return linked, err
			} else if created {
				linked++
			}
		}
	}
	return linked, nil
}
