package detect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Intellirim/inalign/internal/ledger"
	"github.com/Intellirim/inalign/internal/storage"
)

// ErrInsufficientBaseline signals that an agent has no usable history yet.
// It is not a failure: the drift detector skips anomaly scoring and seeds
// the baseline from the current session instead.
var ErrInsufficientBaseline = errors.New("insufficient baseline")

// ToolStat holds per-tool call statistics across an agent's sessions.
type ToolStat struct {
	Mean   float64 `json:"mean"`   // mean calls per session
	StdDev float64 `json:"stddev"` // population stddev across sessions
	Total  int     `json:"total"`
}

// Baseline is an agent's accumulated behavioral profile.
type Baseline struct {
	AgentID            string              `json:"agent_id"`
	SessionCount       int                 `json:"session_count"`
	ToolStats          map[string]ToolStat `json:"tool_stats"`
	AvgSessionLength   float64             `json:"avg_session_length"`
	AvgIntervalSeconds float64             `json:"avg_interval_seconds"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// KnownTools returns the set of tools the agent has used before.
func (b *Baseline) KnownTools() map[string]bool {
	known := make(map[string]bool, len(b.ToolStats))
	for tool := range b.ToolStats {
		known[tool] = true
	}
	return known
}

// BaselineStore persists per-agent baselines in the shared database.
type BaselineStore struct {
	db *storage.DB
}

// NewBaselineStore creates a baseline store.
func NewBaselineStore(db *storage.DB) *BaselineStore {
	return &BaselineStore{db: db}
}

// Get loads an agent's baseline. Returns ErrInsufficientBaseline when the
// agent has never been seen.
func (s *BaselineStore) Get(ctx context.Context, agentID string) (*Baseline, error) {
	var b Baseline
	var stats, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, session_count, tool_stats, avg_session_length, avg_interval_seconds, updated_at
		 FROM agent_baselines WHERE agent_id = ?`, agentID).
		Scan(&b.AgentID, &b.SessionCount, &stats, &b.AvgSessionLength, &b.AvgIntervalSeconds, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrInsufficientBaseline
	}
	if err != nil {
		return nil, storage.WrapErr("loading baseline", err)
	}
	if err := json.Unmarshal([]byte(stats), &b.ToolStats); err != nil {
		return nil, fmt.Errorf("baseline for %s: bad tool stats: %w", agentID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		b.UpdatedAt = ts
	}
	return &b, nil
}

// put stores a recomputed baseline.
func (s *BaselineStore) put(ctx context.Context, b *Baseline) error {
	stats, err := json.Marshal(b.ToolStats)
	if err != nil {
		return fmt.Errorf("encoding tool stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_baselines (agent_id, session_count, tool_stats, avg_session_length, avg_interval_seconds, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			session_count = excluded.session_count,
			tool_stats = excluded.tool_stats,
			avg_session_length = excluded.avg_session_length,
			avg_interval_seconds = excluded.avg_interval_seconds,
			updated_at = excluded.updated_at`,
		b.AgentID, b.SessionCount, string(stats),
		b.AvgSessionLength, b.AvgIntervalSeconds,
		time.Now().UTC().Format(time.RFC3339Nano))
	return storage.WrapErr("storing baseline", err)
}

// Recompute rebuilds the agent's baseline from its full session history in
// the ledger. O(n) over that history — not incremental, but bounded by one
// agent's records and run at most once per session.
func (s *BaselineStore) Recompute(ctx context.Context, led *ledger.Ledger, agentID string) (*Baseline, error) {
	sessions, err := led.SessionsForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrInsufficientBaseline
	}

	perSessionCounts := make([]map[string]int, 0, len(sessions))
	allTools := make(map[string]bool)
	var totalLength, totalInterval float64
	var intervalSessions int

	for _, sessionID := range sessions {
		records, err := led.Records(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		counts := SessionToolCounts(records, agentID)
		perSessionCounts = append(perSessionCounts, counts)
		for tool := range counts {
			allTools[tool] = true
		}
		totalLength += float64(len(records))
		if mean, ok := meanInterval(records); ok {
			totalInterval += mean
			intervalSessions++
		}
	}

	toolStats := make(map[string]ToolStat, len(allTools))
	n := float64(len(perSessionCounts))
	for tool := range allTools {
		var sum, sumSq, total float64
		for _, counts := range perSessionCounts {
			c := float64(counts[tool]) // zero when absent, which is the point
			sum += c
			sumSq += c * c
			total += c
		}
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		toolStats[tool] = ToolStat{
			Mean:   mean,
			StdDev: math.Sqrt(variance),
			Total:  int(total),
		}
	}

	b := &Baseline{
		AgentID:          agentID,
		SessionCount:     len(sessions),
		ToolStats:        toolStats,
		AvgSessionLength: totalLength / n,
		UpdatedAt:        time.Now().UTC(),
	}
	if intervalSessions > 0 {
		b.AvgIntervalSeconds = totalInterval / float64(intervalSessions)
	}

	if err := s.put(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SessionToolCounts tallies tool-call counts per tool name for one agent in
// one session. File reads/writes recorded as their own activity types count
// under their activity name too.
func SessionToolCounts(records []ledger.Record, agentID string) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		rec := &records[i]
		if agentID != "" && rec.Agent.ID != agentID {
			continue
		}
		switch rec.ActivityType {
		case ledger.ActivityToolCall, ledger.ActivityFileRead, ledger.ActivityFileWrite:
			counts[rec.ActivityName]++
		}
	}
	return counts
}

// meanInterval returns the mean inter-arrival gap in seconds between action
// records, and false when the session has fewer than two.
func meanInterval(records []ledger.Record) (float64, bool) {
	var times []time.Time
	for i := range records {
		switch records[i].ActivityType {
		case ledger.ActivityToolCall, ledger.ActivityFileRead, ledger.ActivityFileWrite:
			times = append(times, records[i].Timestamp)
		}
	}
	if len(times) < 2 {
		return 0, false
	}
	var total float64
	for i := 1; i < len(times); i++ {
		total += times[i].Sub(times[i-1]).Seconds()
	}
	return total / float64(len(times)-1), true
}
