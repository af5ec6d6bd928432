// Package report aggregates detector findings into a single session risk
// report with a 0–100 score and a risk level.
package report

import (
	"time"

	"github.com/Intellirim/inalign/internal/detect"
)

// Weighted contribution per risk level, multiplied by finding confidence.
const (
	weightCritical = 30
	weightHigh     = 15
	weightMedium   = 7
	weightLow      = 2

	anomalyAddend    = 5 // flat addition per statistical anomaly
	riskyChainAddend = 2 // flat addition per risky causal chain
	maxScore         = 100
)

// Level thresholds.
const (
	LevelCritical = "critical" // >= 70
	LevelHigh     = "high"     // >= 40
	LevelMedium   = "medium"   // >= 20
	LevelLow      = "low"
)

// Score computes the session risk score and level from findings and the
// risky causal chain count. Deterministic: same inputs, same output.
func Score(findings []detect.Finding, riskyChainCount int) (int, string) {
	total := 0.0
	for _, f := range findings {
		total += weightFor(f.RiskLevel) * f.Confidence
		if f.Anomaly {
			total += anomalyAddend
		}
	}
	total += float64(riskyChainCount * riskyChainAddend)

	score := int(total)
	if score > maxScore {
		score = maxScore
	}
	return score, levelFor(score)
}

func weightFor(level detect.RiskLevel) float64 {
	switch level {
	case detect.RiskCritical:
		return weightCritical
	case detect.RiskHigh:
		return weightHigh
	case detect.RiskMedium:
		return weightMedium
	default:
		return weightLow
	}
}

func levelFor(score int) string {
	switch {
	case score >= 70:
		return LevelCritical
	case score >= 40:
		return LevelHigh
	case score >= 20:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Report is the full session risk report handed to the caller. Degraded is
// carried through from the scan so "no threats found" and "some detectors
// could not run" stay distinguishable.
type Report struct {
	SessionID       string                    `json:"session_id"`
	RiskScore       int                       `json:"risk_score"`
	RiskLevel       string                    `json:"risk_level"`
	Findings        []detect.Finding          `json:"findings"`
	Degraded        []detect.DegradedDetector `json:"degraded,omitempty"`
	ChainCount      int                       `json:"chain_count"`
	RiskyChainCount int                       `json:"risky_chain_count"`
	RecordCount     int                       `json:"record_count"`
	MerkleRoot      string                    `json:"merkle_root,omitempty"`
	ChainValid      bool                      `json:"chain_valid"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// Complete reports whether every detector ran. A false value means the
// report is incomplete rather than clean.
func (r *Report) Complete() bool { return len(r.Degraded) == 0 }

// Build assembles a report from a scan result and ledger facts.
func Build(scan *detect.ScanResult, recordCount int, merkleRoot string, chainValid bool) *Report {
	score, level := Score(scan.Findings, scan.RiskyChainCount)
	return &Report{
		SessionID:       scan.SessionID,
		RiskScore:       score,
		RiskLevel:       level,
		Findings:        scan.Findings,
		Degraded:        scan.Degraded,
		ChainCount:      scan.ChainCount,
		RiskyChainCount: scan.RiskyChainCount,
		RecordCount:     recordCount,
		MerkleRoot:      merkleRoot,
		ChainValid:      chainValid,
		GeneratedAt:     time.Now().UTC(),
	}
}
