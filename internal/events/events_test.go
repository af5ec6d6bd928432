package events

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Intellirim/inalign/internal/ledger"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const transcript = `{"type":"user_input","name":"user","timestamp":"2026-03-10T09:00:00Z","agent":{"id":"agent-1"},"attributes":{"content":"summarize the report"}}
{"type":"tool_call","name":"read_file","timestamp":"2026-03-10T09:00:01Z","agent":{"id":"agent-1"},"attributes":{"file_path":"/workspace/report.md","offset":0,"follow":true}}
not json at all
{"type":"teleport","name":"x","timestamp":"2026-03-10T09:00:02Z","agent":{"id":"agent-1"}}
{"type":"tool_result","timestamp":"2026-03-10T09:00:03Z","agent":{"id":"agent-1"}}

{"type":"llm_response","name":"model","timestamp":"2026-03-10T09:00:04Z","agent":{"id":"agent-1"},"used_entities":["abc"]}
`

func TestParse(t *testing.T) {
	result, err := Parse([]byte(transcript), "s1", discard())
	if err != nil {
		t.Fatal(err)
	}
	// bad JSON, unknown type, and missing name are skipped; blank lines are
	// not counted
	if result.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", result.Skipped)
	}
	if len(result.Requests) != 3 {
		t.Fatalf("parsed = %d, want 3", len(result.Requests))
	}

	first := result.Requests[0]
	if first.SessionID != "s1" || first.Type != ledger.ActivityUserInput {
		t.Errorf("first request = %+v", first)
	}
	wantTS := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(wantTS) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, wantTS)
	}

	// non-string attribute values are flattened to strings
	second := result.Requests[1]
	if second.Attributes["offset"] != "0" || second.Attributes["follow"] != "true" {
		t.Errorf("attributes not flattened: %v", second.Attributes)
	}

	third := result.Requests[2]
	if len(third.UsedEntities) != 1 || third.UsedEntities[0] != "abc" {
		t.Errorf("used entities not carried: %v", third.UsedEntities)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := ParseFile(path, "s1", discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Requests) != 3 {
		t.Errorf("parsed = %d, want 3", len(result.Requests))
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.jsonl"), "s1", discard()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStringifyAttributes(t *testing.T) {
	out := stringifyAttributes(map[string]any{
		"s":    "text",
		"i":    float64(42),
		"f":    1.5,
		"b":    false,
		"nil":  nil,
		"list": []any{"a", "b"},
	})
	want := map[string]string{
		"s": "text", "i": "42", "f": "1.5", "b": "false", "nil": "", "list": `["a","b"]`,
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("%s = %q, want %q", k, out[k], v)
		}
	}
	if stringifyAttributes(nil) != nil {
		t.Error("nil attributes should stay nil")
	}
}
