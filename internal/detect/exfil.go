package detect

import (
	"context"
	"fmt"

	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/ledger"
)

// exfilChainDetector links a sensitive file read to a later external-network
// call inside a bounded window when the two reference the same entity. The
// linkage is by exact entity reference (shared path, shared content-hash
// ref, or a one-hop derivedFrom lineage edge); transformed or re-encoded
// content is a known detection gap, not covered here.
type exfilChainDetector struct{}

func (d *exfilChainDetector) ID() string { return "exfiltration_chain" }

func (d *exfilChainDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	th := in.Thresholds

	type readEvent struct {
		record *ledger.Record
		path   string
		sens   graph.Sensitivity
		hash   string
	}
	var reads []readEvent

	for i := range in.Records {
		rec := &in.Records[i]
		isRead := rec.ActivityType == ledger.ActivityFileRead ||
			(rec.ActivityType == ledger.ActivityToolCall &&
				(graph.IsReadTool(rec.ActivityName) || graph.IsShellTool(rec.ActivityName)))
		if !isRead {
			continue
		}
		for _, ref := range graph.ExtractRefs(rec.Attributes) {
			if ref.IsURL {
				continue
			}
			sens := graph.ClassifySensitivity(ref.Value)
			if sens.Rank() < graph.SensitivityHigh.Rank() {
				continue
			}
			reads = append(reads, readEvent{
				record: rec, path: ref.Value, sens: sens,
				hash: ledger.HashEntityRef(ref.Value),
			})
		}
	}
	if len(reads) == 0 {
		return nil, nil
	}

	var findings []Finding
	for i := range in.Records {
		rec := &in.Records[i]
		if rec.ActivityType != ledger.ActivityToolCall || !isExternalCall(rec) {
			continue
		}
		for _, read := range reads {
			delta := rec.Timestamp.Sub(read.record.Timestamp)
			if delta < 0 || delta > th.ExfilWindow {
				continue
			}
			shared, how := sharesEntity(ctx, in, rec, read.path, read.hash)
			if !shared {
				continue
			}

			f := newFinding(d.ID(), "Sensitive read followed by external call", RiskCritical, 0.9, TacticExfiltration)
			f.Description = fmt.Sprintf(
				"read of %s-sensitivity entity %q followed %.1fs later by external tool %q referencing the same entity",
				read.sens, read.path, delta.Seconds(), rec.ActivityName)
			f.MatchedRecordIDs = []string{read.record.ID, rec.ID}
			f.Evidence = map[string]string{
				"entity":      read.path,
				"sensitivity": string(read.sens),
				"gap_seconds": fmt.Sprintf("%.1f", delta.Seconds()),
				"linked_via":  how,
				"tool":        rec.ActivityName,
			}
			f.Recommendation = "Treat as active exfiltration: isolate the agent, audit the destination, rotate exposed secrets."
			f.MitreTechniques = []string{"T1041", "T1567"}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// isExternalCall reports whether a tool call reaches the network: either a
// network-tagged tool, or a shell tool whose command invokes one.
func isExternalCall(rec *ledger.Record) bool {
	if graph.IsNetworkTool(rec.ActivityName) {
		return true
	}
	if !graph.IsShellTool(rec.ActivityName) {
		return false
	}
	for _, ref := range graph.ExtractRefs(rec.Attributes) {
		if ref.IsURL {
			return true
		}
	}
	return false
}

// sharesEntity checks whether the external call references the read entity:
// same extracted path, the read's content-hash ref in used_entities, or a
// derivedFrom lineage edge from one of the call's entities back to the read.
func sharesEntity(ctx context.Context, in *Input, rec *ledger.Record, path, hash string) (bool, string) {
	for _, ref := range graph.ExtractRefs(rec.Attributes) {
		if ref.Value == path {
			return true, "shared_path"
		}
	}
	for _, used := range rec.UsedEntities {
		if used == hash {
			return true, "entity_hash"
		}
	}
	if in.Graph != nil {
		readNodeID := graph.EntityNodeID(rec.SessionID, path)
		for _, ref := range graph.ExtractRefs(rec.Attributes) {
			entID := graph.EntityNodeID(rec.SessionID, ref.Value)
			edges, err := in.Graph.OutgoingEdges(ctx, entID, []graph.Relation{graph.RelDerivedFrom})
			if err != nil {
				continue // lineage lookup is best-effort
			}
			for _, e := range edges {
				if e.TargetID == readNodeID {
					return true, "derived_from"
				}
			}
		}
	}
	return false, ""
}
