// Package alert publishes high-severity findings to a Redis channel so
// external consumers (pagers, SIEM forwarders) can react without polling
// the database.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Intellirim/inalign/internal/detect"
)

// DefaultChannel is the Redis pub/sub channel findings are published on
// when the configuration does not name one.
const DefaultChannel = "inalign.findings"

// Publisher sends findings to Redis.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// New connects to Redis and verifies the connection. An empty channel
// falls back to DefaultChannel.
func New(ctx context.Context, addr, password string, db int, channel string, logger *slog.Logger) (*Publisher, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("alert: ping redis: %w", err)
	}
	return &Publisher{client: client, channel: channel, logger: logger}, nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// alertMessage is the published wire format.
type alertMessage struct {
	SessionID string         `json:"session_id"`
	Finding   detect.Finding `json:"finding"`
}

// PublishFindings sends every high/critical finding on the channel. Lower
// severities stay in the report; the channel is for things worth waking
// someone up over.
func (p *Publisher) PublishFindings(ctx context.Context, sessionID string, findings []detect.Finding) error {
	for _, f := range findings {
		if f.RiskLevel != detect.RiskHigh && f.RiskLevel != detect.RiskCritical {
			continue
		}
		payload, err := json.Marshal(alertMessage{SessionID: sessionID, Finding: f})
		if err != nil {
			return fmt.Errorf("alert: encoding finding %s: %w", f.ID, err)
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("alert: publishing finding %s: %w", f.ID, err)
		}
		p.logger.Debug("finding published", "session", sessionID,
			"pattern", f.PatternID, "level", f.RiskLevel)
	}
	return nil
}
