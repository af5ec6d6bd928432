package detect

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Intellirim/inalign/internal/ledger"
)

// injectionDetector scans tool *results* for instruction-override phrasing.
// Scope matters: only content that originated from a tool is scanned. The
// same phrases typed by the human are ordinary instructions, not injection.
type injectionDetector struct{}

func (d *injectionDetector) ID() string { return "tool_result_injection" }

// Attribute keys that may carry tool-result content.
var resultContentKeys = []string{"content", "result", "output", "stdout", "response"}

var injectionPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|rules|guidelines)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\b`),
	regexp.MustCompile(`(?i)new\s+instructions\s*:`),
	regexp.MustCompile(`(?i)system\s+prompt\s*:`),
	regexp.MustCompile(`(?i)do\s+not\s+(tell|inform|alert)\s+the\s+user`),
	regexp.MustCompile(`(?i)instead\s*,?\s+(run|execute|output|respond\s+with)`),
	regexp.MustCompile(`(?i)\bIMPORTANT\b.{0,40}(ignore|forget|override)`),
}

func (d *injectionDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	var findings []Finding
	for i := range in.Records {
		rec := &in.Records[i]
		if rec.ActivityType != ledger.ActivityToolResult {
			continue
		}
		content := resultContent(rec)
		if content == "" {
			continue
		}

		for _, re := range injectionPhrases {
			loc := re.FindStringIndex(content)
			if loc == nil {
				continue
			}
			f := newFinding(d.ID(), "Instruction override in tool result", RiskHigh, 0.85, TacticPromptInjection)
			f.Description = fmt.Sprintf("tool result from %q contains instruction-override phrasing", rec.ActivityName)
			f.MatchedRecordIDs = []string{rec.ID}
			f.Evidence = map[string]string{
				"phrase":  re.String(),
				"excerpt": excerpt(content, loc[0], loc[1]),
				"tool":    rec.ActivityName,
			}
			f.Recommendation = "Quarantine the tool output's source; the agent may already have acted on the injected instructions."
			f.MitreTechniques = []string{"T1204"}
			findings = append(findings, f)
			break // one finding per record from the built-in list
		}

		if in.Scanner != nil {
			hits, err := in.Scanner.ScanText(ctx, content)
			if err != nil {
				return findings, fmt.Errorf("rule scanner: %w", err)
			}
			for _, hit := range hits {
				f := newFinding(d.ID()+"."+hit.RuleID, hit.RuleName, RiskHigh, 0.75, TacticPromptInjection)
				f.Description = fmt.Sprintf("tool result from %q matched rule %s", rec.ActivityName, hit.RuleID)
				f.MatchedRecordIDs = []string{rec.ID}
				f.Evidence = map[string]string{
					"rule_id":  hit.RuleID,
					"severity": hit.Severity,
					"excerpt":  truncate(hit.Excerpt, 200),
				}
				f.Recommendation = "Quarantine the tool output's source; review the matched rule's guidance."
				f.MitreTechniques = []string{"T1204"}
				findings = append(findings, f)
			}
		}
	}
	return findings, nil
}

func resultContent(rec *ledger.Record) string {
	for _, k := range resultContentKeys {
		if v, ok := rec.Attributes[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func excerpt(s string, start, end int) string {
	const pad = 40
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(s) {
		hi = len(s)
	}
	return truncate(s[lo:hi], 200)
}
