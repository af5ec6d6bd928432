package detect

import (
	"context"
	"fmt"

	"github.com/Intellirim/inalign/internal/metrics"
)

// chainIntegrityDetector delegates to the ledger's full-scan verification.
// A broken link, gap, or hash mismatch is itself a critical finding: the
// record of what happened has been manipulated.
type chainIntegrityDetector struct{}

func (d *chainIntegrityDetector) ID() string { return "chain_integrity" }

func (d *chainIntegrityDetector) Detect(ctx context.Context, in *Input) ([]Finding, error) {
	if in.Ledger == nil {
		return nil, nil
	}
	report, err := in.Ledger.Verify(ctx, in.SessionID, true)
	if err != nil {
		return nil, fmt.Errorf("chain verification: %w", err)
	}
	if report.Valid {
		return nil, nil
	}

	var findings []Finding
	for _, failure := range report.Failures {
		metrics.VerifyFailures.WithLabelValues(string(failure.Kind)).Inc()
		f := newFinding(d.ID(), "Ledger chain manipulation", RiskCritical, 1.0, TacticChainManipulation)
		f.Description = fmt.Sprintf("chain verification failed at index %d: %s (%s)",
			failure.Index, failure.Kind, failure.Detail)
		f.Evidence = map[string]string{
			"index":  fmt.Sprintf("%d", failure.Index),
			"kind":   string(failure.Kind),
			"detail": failure.Detail,
		}
		f.Recommendation = "The session record itself was tampered with; no other finding from this session can be trusted."
		f.MitreTechniques = []string{"T1565"}
		findings = append(findings, f)
	}
	return findings, nil
}
