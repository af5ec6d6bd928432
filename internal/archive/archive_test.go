package archive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Intellirim/inalign/internal/ledger"
)

func TestRecordRows(t *testing.T) {
	records := []ledger.Record{
		{
			ID:             "r0",
			SessionID:      "s1",
			SequenceNumber: 0,
			Timestamp:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
			ActivityType:   ledger.ActivityToolCall,
			ActivityName:   "read_file",
			RecordHash:     "aaa",
		},
		{
			ID:             "r1",
			SessionID:      "s1",
			SequenceNumber: 1,
			ActivityType:   ledger.ActivityToolResult,
			ActivityName:   "read_file",
			PreviousHash:   "aaa",
			RecordHash:     "bbb",
		},
	}

	rows, err := RecordRows(records)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0][0] != "r0" || rows[0][1] != "s1" || rows[0][2] != 0 || rows[0][4] != "aaa" {
		t.Errorf("row 0 = %v", rows[0])
	}

	// the payload column carries the full record
	var decoded ledger.Record
	if err := json.Unmarshal([]byte(rows[1][3].(string)), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.PreviousHash != "aaa" || decoded.RecordHash != "bbb" {
		t.Errorf("decoded payload = %+v", decoded)
	}
}
