package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// MerkleRoot builds a binary Merkle tree bottom-up over the session's ordered
// record hashes and returns the root. Odd-cardinality levels duplicate their
// last node. An empty session yields "". The root changes if any record hash
// changes, and is identical across independently built ledgers with the same
// record content and order.
func (l *Ledger) MerkleRoot(ctx context.Context, sessionID string) (string, error) {
	records, err := l.Records(ctx, sessionID)
	if err != nil {
		return "", err
	}
	hashes := make([]string, len(records))
	for i := range records {
		hashes[i] = records[i].RecordHash
	}
	return merkleRoot(hashes), nil
}

func merkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	level := append([]string(nil), hashes...)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			sum := sha256.Sum256([]byte(level[i] + level[i+1]))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0]
}
