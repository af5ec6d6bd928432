package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Intellirim/inalign/internal/metrics"
	"github.com/Intellirim/inalign/internal/telemetry"
)

// DegradedDetector marks a detector that could not produce results. A report
// carrying any of these is incomplete, not clean — callers must surface the
// difference.
type DegradedDetector struct {
	DetectorID string `json:"detector_id"`
	Reason     string `json:"reason"`
}

// ScanResult is the merged output of one detection pass.
type ScanResult struct {
	SessionID       string             `json:"session_id"`
	Findings        []Finding          `json:"findings"`
	Degraded        []DegradedDetector `json:"degraded,omitempty"`
	ChainCount      int                `json:"chain_count"`
	RiskyChainCount int                `json:"risky_chain_count"`
	StartedAt       time.Time          `json:"started_at"`
	Duration        time.Duration      `json:"duration"`
}

// Runner executes detectors in parallel with per-detector timeouts.
type Runner struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewRunner creates a runner over the given detector set (DefaultDetectors
// when nil).
func NewRunner(detectors []Detector, logger *slog.Logger) *Runner {
	if detectors == nil {
		detectors = DefaultDetectors()
	}
	return &Runner{detectors: detectors, logger: logger}
}

// Scan runs every detector against the input. Detectors have no ordering
// dependency; each runs in its own goroutine under its own timeout, and a
// failing or slow detector degrades the report instead of blocking it.
func (r *Runner) Scan(ctx context.Context, in *Input) (*ScanResult, error) {
	in.Thresholds = in.Thresholds.withDefaults()

	ctx, span := telemetry.Tracer().Start(ctx, "detect.Scan")
	span.SetAttributes(
		attribute.String("session_id", in.SessionID),
		attribute.Int("record_count", len(in.Records)),
		attribute.Int("detector_count", len(r.detectors)),
	)
	defer span.End()

	start := time.Now()
	result := &ScanResult{SessionID: in.SessionID, StartedAt: start.UTC()}

	type detectorOutcome struct {
		id       string
		findings []Finding
		err      error
	}
	outcomes := make(chan detectorOutcome, len(r.detectors))
	var wg sync.WaitGroup

	for _, det := range r.detectors {
		wg.Add(1)
		go func(det Detector) {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, in.Thresholds.DetectorTimeout)
			defer cancel()

			done := make(chan detectorOutcome, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						done <- detectorOutcome{id: det.ID(), err: fmt.Errorf("panic: %v", p)}
					}
				}()
				findings, err := det.Detect(dctx, in)
				done <- detectorOutcome{id: det.ID(), findings: findings, err: err}
			}()

			select {
			case out := <-done:
				outcomes <- out
			case <-dctx.Done():
				outcomes <- detectorOutcome{id: det.ID(), err: fmt.Errorf("timed out after %s", in.Thresholds.DetectorTimeout)}
			}
		}(det)
	}

	wg.Wait()
	close(outcomes)

	for out := range outcomes {
		if out.err != nil {
			metrics.DetectorErrors.WithLabelValues(out.id).Inc()
			r.logger.Warn("detector degraded", "detector", out.id, "error", out.err)
			result.Degraded = append(result.Degraded, DegradedDetector{
				DetectorID: out.id,
				Reason:     out.err.Error(),
			})
			continue
		}
		result.Findings = append(result.Findings, out.findings...)
	}

	// stable output order: severity first, then pattern id
	sort.SliceStable(result.Findings, func(i, j int) bool {
		a, b := result.Findings[i], result.Findings[j]
		if ra, rb := levelRank(a.RiskLevel), levelRank(b.RiskLevel); ra != rb {
			return ra > rb
		}
		return a.PatternID < b.PatternID
	})
	sort.Slice(result.Degraded, func(i, j int) bool {
		return result.Degraded[i].DetectorID < result.Degraded[j].DetectorID
	})

	chains := ExtractChains(in.Records)
	result.ChainCount = len(chains)
	for _, f := range result.Findings {
		if f.PatternID == "causal_chain" {
			result.RiskyChainCount++
		}
		metrics.FindingsEmitted.WithLabelValues(string(f.RiskLevel)).Inc()
	}

	result.Duration = time.Since(start)
	metrics.ScanDuration.Observe(result.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("finding_count", len(result.Findings)),
		attribute.Int("degraded_count", len(result.Degraded)),
	)
	return result, nil
}

func levelRank(l RiskLevel) int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}
