package detect

import (
	"context"
	"time"

	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/ledger"
)

// Thresholds tunes the structural and statistical detectors. Zero values
// are replaced by defaults.
type Thresholds struct {
	RapidMinEvents     int           // minimum same-class events for mass-action
	RapidMinFastGaps   int           // minimum sub-threshold inter-arrival gaps
	RapidGap           time.Duration // what counts as a fast gap
	ExfilWindow        time.Duration // read → external-call linking window
	DriftZScore        float64       // |z| above this is a frequency anomaly
	DriftIntervalRatio float64       // current mean interval below ratio×baseline is an anomaly
	DetectorTimeout    time.Duration // per-detector budget inside a scan
}

// DefaultThresholds returns the standard tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RapidMinEvents:     10,
		RapidMinFastGaps:   5,
		RapidGap:           2 * time.Second,
		ExfilWindow:        60 * time.Second,
		DriftZScore:        3.0,
		DriftIntervalRatio: 0.2,
		DetectorTimeout:    10 * time.Second,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.RapidMinEvents == 0 {
		t.RapidMinEvents = def.RapidMinEvents
	}
	if t.RapidMinFastGaps == 0 {
		t.RapidMinFastGaps = def.RapidMinFastGaps
	}
	if t.RapidGap == 0 {
		t.RapidGap = def.RapidGap
	}
	if t.ExfilWindow == 0 {
		t.ExfilWindow = def.ExfilWindow
	}
	if t.DriftZScore == 0 {
		t.DriftZScore = def.DriftZScore
	}
	if t.DriftIntervalRatio == 0 {
		t.DriftIntervalRatio = def.DriftIntervalRatio
	}
	if t.DetectorTimeout == 0 {
		t.DetectorTimeout = def.DetectorTimeout
	}
	return t
}

// TextScanner matches tool-result text against an external rule catalog.
// The built-in injection phrase list runs regardless; a scanner widens the
// coverage.
type TextScanner interface {
	ScanText(ctx context.Context, content string) ([]TextMatch, error)
}

// TextMatch is one rule hit from a TextScanner.
type TextMatch struct {
	RuleID   string
	RuleName string
	Severity string
	Excerpt  string
}

// Input is the read-only state a detector works over. Detectors are pure:
// same input, same findings.
type Input struct {
	SessionID  string
	Records    []ledger.Record
	Graph      *graph.Store
	Ledger     *ledger.Ledger
	Baselines  *BaselineStore
	Scanner    TextScanner // may be nil
	Thresholds Thresholds
}

// Detector is a single independent pattern check.
type Detector interface {
	ID() string
	Detect(ctx context.Context, in *Input) ([]Finding, error)
}

// DefaultDetectors returns the full detector set in registration order.
// Execution order is irrelevant; the runner shuffles them across goroutines.
func DefaultDetectors() []Detector {
	return []Detector{
		&rapidActionDetector{},
		&sensitiveAccessDetector{},
		&exfilChainDetector{},
		&suspiciousCommandDetector{},
		&reconDetector{},
		&persistenceDetector{},
		&defenseEvasionDetector{},
		&chainIntegrityDetector{},
		&injectionDetector{},
		&causalChainDetector{},
		&driftDetector{},
	}
}
