// Package detect implements the pattern engine: independent structural and
// statistical detectors that read the ledger and the knowledge graph and
// emit scored findings. Detectors are isolated from each other; one failing
// never blocks the rest.
package detect

import "github.com/google/uuid"

// RiskLevel ranks a finding's severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// MITRE-style tactic tags carried by findings.
const (
	TacticCollection          = "COLLECTION"
	TacticPrivilegeEscalation = "PRIVILEGE_ESCALATION"
	TacticExfiltration        = "EXFILTRATION"
	TacticExecution           = "EXECUTION"
	TacticReconnaissance      = "RECONNAISSANCE"
	TacticPersistence         = "PERSISTENCE"
	TacticDefenseEvasion      = "DEFENSE_EVASION"
	TacticChainManipulation   = "CHAIN_MANIPULATION"
	TacticPromptInjection     = "PROMPT_INJECTION"
	TacticAnomaly             = "ANOMALY"
)

// Finding is one detector's scored, evidenced claim about a
// security-relevant pattern in a session.
type Finding struct {
	ID               string            `json:"id"`
	PatternID        string            `json:"pattern_id"`
	PatternName      string            `json:"pattern_name"`
	RiskLevel        RiskLevel         `json:"risk_level"`
	Confidence       float64           `json:"confidence"` // 0–1
	Description      string            `json:"description"`
	MatchedRecordIDs []string          `json:"matched_record_ids,omitempty"`
	Evidence         map[string]string `json:"evidence,omitempty"`
	Recommendation   string            `json:"recommendation,omitempty"`
	MitreTactic      string            `json:"mitre_tactic"`
	MitreTechniques  []string          `json:"mitre_techniques,omitempty"`
	Anomaly          bool              `json:"anomaly,omitempty"` // statistical, not structural
}

// newFinding fills the boilerplate fields every finding shares.
func newFinding(patternID, patternName string, level RiskLevel, confidence float64, tactic string) Finding {
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return Finding{
		ID:          uuid.NewString(),
		PatternID:   patternID,
		PatternName: patternName,
		RiskLevel:   level,
		Confidence:  confidence,
		MitreTactic: tactic,
	}
}
