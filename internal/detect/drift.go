package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// driftDetector compares the current session against the agent's historical
// baseline: a z-score above the threshold on any tool's call count, or a
// mean inter-arrival interval collapsing below the configured ratio of the
// baseline, is a behavioral anomaly. An unseen agent yields an
// "insufficient baseline" marker (score contribution zero) and seeds the
// baseline from this session rather than raising a false anomaly.
type driftDetector struct{}

func (d *driftDetector) ID() string { return "behavior_drift" }

// stddev floor: a perfectly regular history (stddev 0) would otherwise turn
// any deviation into an infinite z-score.
const minStdDev = 1.0

func (d *driftDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	if in.Baselines == nil || len(in.Records) == 0 {
		return nil, nil
	}
	agentID := in.Records[0].Agent.ID
	if agentID == "" {
		return nil, nil
	}

	baseline, err := in.Baselines.Get(ctx, agentID)
	if errors.Is(err, ErrInsufficientBaseline) {
		if in.Ledger != nil {
			if _, serr := in.Baselines.Recompute(ctx, in.Ledger, agentID); serr != nil && !errors.Is(serr, ErrInsufficientBaseline) {
				return nil, fmt.Errorf("seeding baseline for %s: %w", agentID, serr)
			}
		}
		f := newFinding(d.ID()+".insufficient", "Insufficient baseline", RiskLow, 0, TacticAnomaly)
		f.Description = fmt.Sprintf("agent %q has no historical baseline; seeded from this session, anomaly scoring skipped", agentID)
		f.Evidence = map[string]string{"agent": agentID}
		return []Finding{f}, nil
	}
	if err != nil {
		return nil, err
	}

	th := in.Thresholds
	current := SessionToolCounts(in.Records, agentID)
	var findings []Finding

	for tool, count := range current {
		stat, known := baseline.ToolStats[tool]
		if !known {
			// unseen tool: worth surfacing, but it has no distribution to
			// score against
			f := newFinding(d.ID()+".new_tool", "Previously unseen tool", RiskMedium, 0.6, TacticAnomaly)
			f.Anomaly = true
			f.Description = fmt.Sprintf("agent %q used tool %q for the first time (%d calls)", agentID, tool, count)
			f.Evidence = map[string]string{"agent": agentID, "tool": tool, "count": fmt.Sprintf("%d", count)}
			f.Recommendation = "Confirm the new tool is expected for this agent's role."
			findings = append(findings, f)
			continue
		}
		sd := stat.StdDev
		if sd < minStdDev {
			sd = minStdDev
		}
		z := (float64(count) - stat.Mean) / sd
		if math.Abs(z) <= th.DriftZScore {
			continue
		}
		f := newFinding(d.ID()+".frequency", "Tool frequency spike", RiskHigh, math.Min(0.5+math.Abs(z)/20, 0.95), TacticAnomaly)
		f.Anomaly = true
		f.Description = fmt.Sprintf("agent %q made %d %s calls; baseline %.1f±%.1f over %d sessions (z=%.1f)",
			agentID, count, tool, stat.Mean, stat.StdDev, baseline.SessionCount, z)
		f.Evidence = map[string]string{
			"agent": agentID, "tool": tool,
			"count": fmt.Sprintf("%d", count),
			"mean":  fmt.Sprintf("%.2f", stat.Mean),
			"sd":    fmt.Sprintf("%.2f", stat.StdDev),
			"z":     fmt.Sprintf("%.2f", z),
		}
		f.Recommendation = "Compare the session's task against previous ones; a benign task change should explain the spike."
		findings = append(findings, f)
	}

	if mean, ok := meanInterval(in.Records); ok && baseline.AvgIntervalSeconds > 0 {
		if mean < th.DriftIntervalRatio*baseline.AvgIntervalSeconds {
			f := newFinding(d.ID()+".interval", "Action interval collapse", RiskMedium, 0.7, TacticAnomaly)
			f.Anomaly = true
			f.Description = fmt.Sprintf("mean action interval %.2fs is below %.0f%% of the %.2fs baseline",
				mean, th.DriftIntervalRatio*100, baseline.AvgIntervalSeconds)
			f.Evidence = map[string]string{
				"current_mean_sec":  fmt.Sprintf("%.2f", mean),
				"baseline_mean_sec": fmt.Sprintf("%.2f", baseline.AvgIntervalSeconds),
			}
			f.Recommendation = "A sudden speed-up can indicate scripted replay or runaway automation."
			findings = append(findings, f)
		}
	}

	return findings, nil
}
