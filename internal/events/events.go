// Package events parses agent session transcripts (JSONL, one event per
// line) into ledger append inputs. Parsing is best-effort per line: a
// malformed event is skipped and counted, never fatal to the batch.
package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Intellirim/inalign/internal/ledger"
	"github.com/Intellirim/inalign/internal/safefile"
)

// ErrMalformed marks a single event that could not be parsed.
var ErrMalformed = errors.New("malformed event")

// maxTranscriptBytes bounds transcript reads; a session transcript past this
// size is almost certainly not what the caller meant to ingest.
const maxTranscriptBytes = 64 << 20 // 64 MB

// maxLineBytes bounds a single event line.
const maxLineBytes = 1 << 20 // 1 MB

// RawEvent is one captured agent event as it appears on the wire.
type RawEvent struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Timestamp  time.Time       `json:"timestamp"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	Used       []string        `json:"used_entities,omitempty"`
	Generated  []string        `json:"generated_entities,omitempty"`
	Agent      ledger.AgentRef `json:"agent"`
}

// ParseResult summarizes one transcript parse.
type ParseResult struct {
	Requests []ledger.AppendRequest
	Skipped  int // malformed lines
}

// ParseFile reads a JSONL transcript from disk (symlinks rejected, size
// bounded) and converts each event into a ledger append request.
func ParseFile(path, sessionID string, logger *slog.Logger) (*ParseResult, error) {
	data, err := safefile.ReadFileMax(path, maxTranscriptBytes)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return Parse(data, sessionID, logger)
}

// Parse converts JSONL transcript bytes into ledger append requests.
func Parse(data []byte, sessionID string, logger *slog.Logger) (*ParseResult, error) {
	result := &ParseResult{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		req, err := parseLine(line, sessionID)
		if err != nil {
			logger.Warn("skipping malformed event", "line", lineNo, "error", err)
			result.Skipped++
			continue
		}
		result.Requests = append(result.Requests, *req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning transcript: %w", err)
	}
	return result, nil
}

func parseLine(line []byte, sessionID string) (*ledger.AppendRequest, error) {
	var ev RawEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	activityType := ledger.ActivityType(ev.Type)
	if !activityType.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, ev.Type)
	}
	if ev.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformed)
	}

	return &ledger.AppendRequest{
		SessionID:         sessionID,
		Type:              activityType,
		Name:              ev.Name,
		UsedEntities:      ev.Used,
		GeneratedEntities: ev.Generated,
		Attributes:        stringifyAttributes(ev.Attributes),
		Agent:             ev.Agent,
		Timestamp:         ev.Timestamp,
	}, nil
}

// stringifyAttributes flattens arbitrary JSON attribute values to strings at
// the ingest boundary. Keeping attributes as string→string from here on is
// what makes the canonical hash input trivially deterministic.
func stringifyAttributes(attrs map[string]any) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = trimFloat(val)
		case bool:
			if val {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		case nil:
			out[k] = ""
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
