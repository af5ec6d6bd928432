package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// RecordSigner signs record hashes with a local Ed25519 key. It satisfies
// the ledger's Signer interface.
type RecordSigner struct {
	keypair *Keypair
	id      string
}

// NewRecordSigner wraps a keypair for record signing.
func NewRecordSigner(kp *Keypair) *RecordSigner {
	return &RecordSigner{
		keypair: kp,
		id:      Fingerprint(kp.PublicKey),
	}
}

// Sign signs the payload (a record hash) and returns the base64 signature
// together with the signer's key fingerprint.
func (s *RecordSigner) Sign(payload []byte) (string, string) {
	sig := ed25519.Sign(s.keypair.PrivateKey, payload)
	return base64.StdEncoding.EncodeToString(sig), s.id
}

// VerifyRecordSignature checks a record-hash signature against a public key.
func VerifyRecordSignature(pub ed25519.PublicKey, recordHash, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("invalid base64 signature: %w", err)
	}
	if !ed25519.Verify(pub, []byte(recordHash), sig) {
		return fmt.Errorf("signature does not match record hash")
	}
	return nil
}
