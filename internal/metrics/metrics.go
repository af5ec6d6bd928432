// Package metrics holds the Prometheus instruments shared across inalign.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsAppended counts ledger appends by activity type.
	RecordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inalign",
		Name:      "records_appended_total",
		Help:      "Provenance records appended to the ledger.",
	}, []string{"activity_type"})

	// VerifyFailures counts chain verification violations by kind.
	VerifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inalign",
		Name:      "verify_failures_total",
		Help:      "Chain verification violations found.",
	}, []string{"kind"})

	// FindingsEmitted counts detector findings by risk level.
	FindingsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inalign",
		Name:      "findings_total",
		Help:      "Security findings emitted by the pattern engine.",
	}, []string{"risk_level"})

	// DetectorErrors counts isolated detector failures by detector ID.
	DetectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inalign",
		Name:      "detector_errors_total",
		Help:      "Detectors that failed or timed out during a scan.",
	}, []string{"detector"})

	// ScanDuration observes full pattern-engine scan latency per session.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inalign",
		Name:      "scan_duration_seconds",
		Help:      "Wall time of a full detection scan.",
		Buckets:   prometheus.DefBuckets,
	})
)
