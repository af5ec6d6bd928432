// Package inalign records AI agent activity into a hash-chained provenance
// ledger, projects it into a knowledge graph, and scans it for attack
// patterns and behavioral anomalies.
//
// The Service type is the single entry point: open it over a database path,
// append activity records, then verify, populate, and scan sessions.
package inalign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Intellirim/inalign/internal/alert"
	"github.com/Intellirim/inalign/internal/config"
	"github.com/Intellirim/inalign/internal/detect"
	"github.com/Intellirim/inalign/internal/engine"
	"github.com/Intellirim/inalign/internal/events"
	"github.com/Intellirim/inalign/internal/graph"
	"github.com/Intellirim/inalign/internal/identity"
	"github.com/Intellirim/inalign/internal/ledger"
	"github.com/Intellirim/inalign/internal/report"
	"github.com/Intellirim/inalign/internal/storage"
)

// Service wires the ledger, graph, and detection pipeline over one database.
type Service struct {
	cfg       *config.Config
	db        *storage.DB
	ledger    *ledger.Ledger
	graph     *graph.Store
	baselines *detect.BaselineStore
	scanner   *engine.Scanner
	runner    *detect.Runner
	publisher *alert.Publisher
	logger    *slog.Logger
}

// Open builds a Service from configuration. The returned Service owns the
// database handle and, when alerts are enabled, the Redis connection; call
// Close when done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := storage.Open(cfg.Storage.Path, logger)
	if err != nil {
		return nil, err
	}

	var signer ledger.Signer
	if cfg.Identity.SignRecords {
		kp, err := identity.LoadKeypair(cfg.Identity.KeysDir, "inalign")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("loading signing key: %w", err)
		}
		signer = identity.NewRecordSigner(kp)
	}

	svc := &Service{
		cfg:       cfg,
		db:        db,
		ledger:    ledger.New(db, signer, logger),
		graph:     graph.NewStore(db, logger),
		baselines: detect.NewBaselineStore(db),
		scanner:   engine.NewScanner(cfg.CustomRulesDir),
		runner:    detect.NewRunner(detect.DefaultDetectors(), logger),
		logger:    logger,
	}

	if cfg.Alerts.Enabled {
		pub, err := alert.New(ctx, cfg.Alerts.RedisAddr, "", 0, cfg.Alerts.Channel, logger)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("connecting alert publisher: %w", err)
		}
		svc.publisher = pub
	}

	return svc, nil
}

// Close releases the database and any alert connection.
func (s *Service) Close() error {
	s.scanner.Close()
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	return s.db.Close()
}

// Ledger exposes the underlying ledger for read access.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Graph exposes the underlying graph store for read access.
func (s *Service) Graph() *graph.Store { return s.graph }

// Append adds one activity record to a session's chain.
func (s *Service) Append(ctx context.Context, req ledger.AppendRequest) (*ledger.Record, error) {
	return s.ledger.Append(ctx, req)
}

// Ingest parses a JSONL transcript file and appends every well-formed event
// to the session's chain in order. It returns the number of records appended
// and the number of malformed lines skipped.
func (s *Service) Ingest(ctx context.Context, path, sessionID string) (appended, skipped int, err error) {
	parsed, err := events.ParseFile(path, sessionID, s.logger)
	if err != nil {
		return 0, 0, err
	}
	for _, req := range parsed.Requests {
		if _, err := s.ledger.Append(ctx, req); err != nil {
			return appended, parsed.Skipped, fmt.Errorf("appending event %d: %w", appended, err)
		}
		appended++
	}
	return appended, parsed.Skipped, nil
}

// Verify checks a session's hash chain and returns the verification report.
func (s *Service) Verify(ctx context.Context, sessionID string, fullScan bool) (*ledger.VerifyReport, error) {
	return s.ledger.Verify(ctx, sessionID, fullScan)
}

// MerkleRoot seals a session into a single root hash.
func (s *Service) MerkleRoot(ctx context.Context, sessionID string) (string, error) {
	return s.ledger.MerkleRoot(ctx, sessionID)
}

// PopulateGraph projects a session's ledger records into the knowledge
// graph: activity nodes and ordering edges, entity nodes with sensitivity
// classification and lineage, then cross-session links. Re-population of an
// unchanged session creates nothing new.
func (s *Service) PopulateGraph(ctx context.Context, sessionID string) (graph.PopulateResult, error) {
	records, err := s.ledger.Records(ctx, sessionID)
	if err != nil {
		return graph.PopulateResult{}, err
	}

	res, err := s.graph.PopulateFromLedger(ctx, records)
	if err != nil {
		return res, err
	}
	entRes, err := s.graph.PopulateEntities(ctx, records)
	res.NodesCreated += entRes.NodesCreated
	res.EdgesCreated += entRes.EdgesCreated
	res.Skipped += entRes.Skipped
	if err != nil {
		return res, err
	}

	linked, err := s.graph.LinkCrossSession(ctx, sessionID)
	res.EdgesCreated += linked
	return res, err
}

// Scan runs the full detector pipeline over a session and returns a risk
// report. High and critical findings are published to the alert channel when
// one is configured; publish failures are logged, never fatal to the scan.
func (s *Service) Scan(ctx context.Context, sessionID string) (*report.Report, error) {
	records, err := s.ledger.Records(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	scan, err := s.runner.Scan(ctx, &detect.Input{
		SessionID:  sessionID,
		Records:    records,
		Graph:      s.graph,
		Ledger:     s.ledger,
		Baselines:  s.baselines,
		Scanner:    s.scanner,
		Thresholds: s.thresholds(),
	})
	if err != nil {
		return nil, err
	}

	verify, err := s.ledger.Verify(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	root := ""
	if verify.Valid {
		root, err = s.ledger.MerkleRoot(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	rep := report.Build(scan, len(records), root, verify.Valid)

	if s.publisher != nil {
		if err := s.publisher.PublishFindings(ctx, sessionID, scan.Findings); err != nil {
			s.logger.Warn("alert publish failed", "session", sessionID, "error", err)
		}
	}
	return rep, nil
}

// UpdateBaseline recomputes an agent's behavioral baseline from its full
// ledger history. Call it after a session is sealed and scanned clean, so a
// compromised session does not poison the baseline it is judged against.
func (s *Service) UpdateBaseline(ctx context.Context, agentID string) (*detect.Baseline, error) {
	return s.baselines.Recompute(ctx, s.ledger, agentID)
}

// Query walks the graph outward from a node, returning every reachable path
// up to maxDepth (0 means the default depth). An empty relations slice
// follows all edge types.
func (s *Service) Query(ctx context.Context, startNodeID string, maxDepth int, relations []graph.Relation) ([]graph.PathResult, error) {
	return s.graph.Query(ctx, startNodeID, maxDepth, relations)
}

func (s *Service) thresholds() detect.Thresholds {
	d := s.cfg.Detect
	return detect.Thresholds{
		RapidMinEvents:     d.RapidMinEvents,
		RapidMinFastGaps:   d.RapidMinFastGaps,
		RapidGap:           time.Duration(d.RapidGapMillis) * time.Millisecond,
		ExfilWindow:        time.Duration(d.ExfilWindowSecs) * time.Second,
		DriftZScore:        d.DriftZScore,
		DriftIntervalRatio: d.DriftIntervalRatio,
		DetectorTimeout:    time.Duration(d.DetectorTimeoutSec) * time.Second,
	}
}
