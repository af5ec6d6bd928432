package ledger

import (
	"context"
	"fmt"
)

// FailureKind classifies a verification violation.
type FailureKind string

const (
	FailureHashMismatch FailureKind = "hash_mismatch" // payload tampering
	FailureBrokenLink   FailureKind = "broken_link"   // reordering or deletion
	FailureSequenceGap  FailureKind = "sequence_gap"  // missing records
)

// Failure describes one verification violation.
type Failure struct {
	Index  int         `json:"index"` // position in the scan, 0-based
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// IntegrityError is the error form of a chain verification failure. It is
// reported, never auto-repaired.
type IntegrityError struct {
	SessionID string
	Failures  []Failure
}

func (e *IntegrityError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("chain integrity failure in session %s", e.SessionID)
	}
	f := e.Failures[0]
	return fmt.Sprintf("chain integrity failure in session %s: %s at index %d: %s",
		e.SessionID, f.Kind, f.Index, f.Detail)
}

// VerifyReport is the outcome of a chain verification pass.
type VerifyReport struct {
	SessionID   string    `json:"session_id"`
	Valid       bool      `json:"valid"`
	RecordCount int       `json:"record_count"`
	Failures    []Failure `json:"failures,omitempty"`
}

// FirstFailure returns the earliest violation, or nil when the chain is valid.
func (r *VerifyReport) FirstFailure() *Failure {
	if len(r.Failures) == 0 {
		return nil
	}
	return &r.Failures[0]
}

// Verify walks the session's records in sequence order and checks, per
// record: the stored hash against a recomputation over the canonical payload,
// the previous_hash link against the prior record, and the sequence number
// against the scan position. With fullScan false it stops at the first
// violation; with fullScan true it reports every violation in one pass.
func (l *Ledger) Verify(ctx context.Context, sessionID string, fullScan bool) (*VerifyReport, error) {
	records, err := l.Records(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{SessionID: sessionID, Valid: true, RecordCount: len(records)}
	prevHash := ""

	for i := range records {
		rec := &records[i]
		if f := checkRecord(rec, i, prevHash); f != nil {
			report.Valid = false
			report.Failures = append(report.Failures, *f)
			if !fullScan {
				break
			}
		}
		prevHash = rec.RecordHash
	}
	return report, nil
}

// checkRecord returns the first violation for one record, or nil. Link
// breakage is checked before sequence gaps: a deleted middle record trips
// both, and the broken link is the more precise signal.
func checkRecord(rec *Record, index int, prevHash string) *Failure {
	recomputed, err := ComputeHash(rec)
	if err != nil {
		return &Failure{Index: index, Kind: FailureHashMismatch,
			Detail: fmt.Sprintf("hash recomputation failed: %v", err)}
	}
	if recomputed != rec.RecordHash {
		return &Failure{Index: index, Kind: FailureHashMismatch,
			Detail: fmt.Sprintf("stored hash %.12s.. does not match recomputed %.12s..", rec.RecordHash, recomputed)}
	}
	if rec.PreviousHash != prevHash {
		return &Failure{Index: index, Kind: FailureBrokenLink,
			Detail: fmt.Sprintf("previous_hash %.12s.. does not match prior record hash %.12s..", rec.PreviousHash, prevHash)}
	}
	if rec.SequenceNumber != index {
		return &Failure{Index: index, Kind: FailureSequenceGap,
			Detail: fmt.Sprintf("sequence number %d at position %d", rec.SequenceNumber, index)}
	}
	return nil
}
