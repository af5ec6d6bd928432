package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// hashTimeFormat is the canonical timestamp encoding used in hash input.
// RFC 3339 with nanoseconds, always UTC, so the same instant always encodes
// to the same bytes.
const hashTimeFormat = time.RFC3339Nano

// canonicalPayload builds the deterministic byte sequence a record's hash is
// computed over: sorted-key JSON covering every field except record_hash and
// the optional signature. encoding/json emits map keys in sorted order, which
// makes the serialization field-order independent and bit-reproducible.
func canonicalPayload(r *Record) ([]byte, error) {
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload := map[string]any{
		"id":                  r.ID,
		"session_id":          r.SessionID,
		"sequence_number":     r.SequenceNumber,
		"timestamp":           r.Timestamp.UTC().Format(hashTimeFormat),
		"activity_type":       string(r.ActivityType),
		"activity_name":       r.ActivityName,
		"activity_attributes": attrs,
		"used_entities":       emptyIfNil(r.UsedEntities),
		"generated_entities":  emptyIfNil(r.GeneratedEntities),
		"agent": map[string]string{
			"id":   r.Agent.ID,
			"type": r.Agent.Type,
			"name": r.Agent.Name,
		},
		"previous_hash": r.PreviousHash,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing record %s: %w", r.ID, err)
	}
	return data, nil
}

// ComputeHash returns the SHA-256 hex hash of the record's canonical payload.
func ComputeHash(r *Record) (string, error) {
	payload, err := canonicalPayload(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// HashEntityRef returns the content-hash reference used for entity lists:
// SHA-256 hex of the normalized content identifier.
func HashEntityRef(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
