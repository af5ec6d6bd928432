package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/ledger"
)

// sensitiveAccessDetector flags any tool call that touches an entity whose
// path classifies as HIGH or CRITICAL sensitivity. Confidence scales with
// how many such touches the session contains.
type sensitiveAccessDetector struct{}

func (d *sensitiveAccessDetector) ID() string { return "sensitive_access" }

func (d *sensitiveAccessDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	type touch struct {
		record      *ledger.Record
		path        string
		sensitivity graph.Sensitivity
	}
	var touches []touch
	worst := graph.SensitivityLow

	for i := range in.Records {
		rec := &in.Records[i]
		switch rec.ActivityType {
		case ledger.ActivityToolCall, ledger.ActivityFileRead, ledger.ActivityFileWrite:
		default:
			continue
		}
		for _, ref := range graph.ExtractRefs(rec.Attributes) {
			sens := graph.ClassifySensitivity(ref.Value)
			if sens.Rank() < graph.SensitivityHigh.Rank() {
				continue
			}
			touches = append(touches, touch{record: rec, path: ref.Value, sensitivity: sens})
			if sens.Rank() > worst.Rank() {
				worst = sens
			}
		}
	}
	if len(touches) == 0 {
		return nil, nil
	}

	level := RiskHigh
	if worst == graph.SensitivityCritical {
		level = RiskCritical
	}
	confidence := 0.5 + 0.1*float64(len(touches))

	f := newFinding(d.ID(), "Sensitive entity access", level, confidence, TacticPrivilegeEscalation)

	var paths []string
	for _, t := range touches {
		f.MatchedRecordIDs = append(f.MatchedRecordIDs, t.record.ID)
		paths = append(paths, fmt.Sprintf("%s (%s)", t.path, t.sensitivity))
	}
	f.Description = fmt.Sprintf("%d tool call(s) touched HIGH/CRITICAL-sensitivity entities", len(touches))
	f.Evidence = map[string]string{
		"touch_count": fmt.Sprintf("%d", len(touches)),
		"worst":       string(worst),
		"paths":       strings.Join(paths, ", "),
	}
	f.Recommendation = "Confirm the agent was authorized to access these paths; rotate any credentials it may have read."
	f.MitreTechniques = []string{"T1552", "T1078"}
	return []Finding{f}, nil
}
