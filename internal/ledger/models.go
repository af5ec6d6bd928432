// Package ledger implements the append-only, hash-chained provenance record
// store. Records are immutable once hashed: there is no update path, only
// append, and every record links to its predecessor by hash so deletions and
// reordering are detectable after the fact.
package ledger

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies what kind of agent action a record captures.
type ActivityType string

const (
	ActivityToolCall      ActivityType = "tool_call"
	ActivityToolResult    ActivityType = "tool_result"
	ActivityLLMRequest    ActivityType = "llm_request"
	ActivityLLMResponse   ActivityType = "llm_response"
	ActivityFileRead      ActivityType = "file_read"
	ActivityFileWrite     ActivityType = "file_write"
	ActivityDecision      ActivityType = "decision"
	ActivityUserInput     ActivityType = "user_input"
	ActivitySecurityCheck ActivityType = "security_check"
	ActivityError         ActivityType = "error"
)

// ActivityTypes lists every valid activity type.
var ActivityTypes = []ActivityType{
	ActivityToolCall, ActivityToolResult, ActivityLLMRequest, ActivityLLMResponse,
	ActivityFileRead, ActivityFileWrite, ActivityDecision, ActivityUserInput,
	ActivitySecurityCheck, ActivityError,
}

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AgentRef identifies the agent that performed an action.
type AgentRef struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Record is a single provenance ledger entry. RecordHash is computed over
// every other field except Signature/SignerID at append time and never
// changes afterward.
type Record struct {
	ID                string            `json:"id"`
	SessionID         string            `json:"session_id"`
	SequenceNumber    int               `json:"sequence_number"`
	Timestamp         time.Time         `json:"timestamp"`
	ActivityType      ActivityType      `json:"activity_type"`
	ActivityName      string            `json:"activity_name"`
	Attributes        map[string]string `json:"activity_attributes,omitempty"`
	UsedEntities      []string          `json:"used_entities,omitempty"`
	GeneratedEntities []string          `json:"generated_entities,omitempty"`
	Agent             AgentRef          `json:"agent"`
	PreviousHash      string            `json:"previous_hash"`
	RecordHash        string            `json:"record_hash"`
	Signature         string            `json:"signature,omitempty"`
	SignerID          string            `json:"signer_id,omitempty"`
}

// recordNamespace seeds deterministic record IDs so that identical append
// inputs always produce identical records (and therefore identical hashes).
var recordNamespace = uuid.MustParse("7c9e6479-4a3c-4cf1-b0f6-6f2d1a9e8b11")

// RecordID derives the deterministic ID for a record position.
func RecordID(sessionID string, sequence int) string {
	return uuid.NewSHA1(recordNamespace, []byte(sessionID+"#"+strconv.Itoa(sequence))).String()
}
