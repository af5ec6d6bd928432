package detect

import (
	"context"
	"fmt"

	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/ledger"
)

// rapidActionDetector flags mass/rapid same-class activity: many file reads
// with machine-speed inter-arrival gaps indicate bulk collection rather than
// interactive work.
type rapidActionDetector struct{}

func (d *rapidActionDetector) ID() string { return "rapid_collection" }

func (d *rapidActionDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	th := in.Thresholds

	var reads []*ledger.Record
	for i := range in.Records {
		rec := &in.Records[i]
		if rec.ActivityType == ledger.ActivityFileRead ||
			(rec.ActivityType == ledger.ActivityToolCall && graph.IsReadTool(rec.ActivityName)) {
			reads = append(reads, rec)
		}
	}
	if len(reads) < th.RapidMinEvents {
		return nil, nil
	}

	fastGaps := 0
	var minGap, maxGap float64
	for i := 1; i < len(reads); i++ {
		gap := reads[i].Timestamp.Sub(reads[i-1].Timestamp)
		if gap < th.RapidGap {
			fastGaps++
		}
		secs := gap.Seconds()
		if i == 1 || secs < minGap {
			minGap = secs
		}
		if secs > maxGap {
			maxGap = secs
		}
	}
	if fastGaps < th.RapidMinFastGaps {
		return nil, nil
	}

	confidence := 0.6 + 0.02*float64(fastGaps)
	f := newFinding(d.ID(), "Mass rapid file access", RiskHigh, confidence, TacticCollection)
	f.Description = fmt.Sprintf(
		"%d file reads with %d inter-arrival gaps under %s — machine-speed bulk collection",
		len(reads), fastGaps, th.RapidGap)
	f.Evidence = map[string]string{
		"read_count":  fmt.Sprintf("%d", len(reads)),
		"fast_gaps":   fmt.Sprintf("%d", fastGaps),
		"min_gap_sec": fmt.Sprintf("%.3f", minGap),
		"max_gap_sec": fmt.Sprintf("%.3f", maxGap),
	}
	for _, r := range reads {
		f.MatchedRecordIDs = append(f.MatchedRecordIDs, r.ID)
	}
	f.Recommendation = "Review whether the agent's task required bulk file access; restrict its filesystem scope if not."
	f.MitreTechniques = []string{"T1119", "T1005"}
	return []Finding{f}, nil
}
