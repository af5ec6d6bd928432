// Package identity provides Ed25519 key generation and record-hash signing.
// Signing is optional everywhere: a ledger without a key still produces a
// verifiable hash chain, a ledger with one additionally binds each record to
// a signer identity.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Intellirim/inalign/internal/safefile"
)

// Keypair holds an Ed25519 key pair for a signing identity.
type Keypair struct {
	Name       string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeypair creates a new Ed25519 key pair under the given name.
func GenerateKeypair(name string) (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &Keypair{
		Name:       name,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// Save writes the keypair to disk as PEM files:
// <dir>/<name>.key (private, 0600) and <dir>/<name>.pub (public, 0644).
func (kp *Keypair) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating keys directory: %w", err)
	}

	privBlock := &pem.Block{
		Type:  "INALIGN ED25519 PRIVATE KEY",
		Bytes: kp.PrivateKey,
	}
	privPath := filepath.Join(dir, kp.Name+".key")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(privBlock), 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	pubBlock := &pem.Block{
		Type:  "INALIGN ED25519 PUBLIC KEY",
		Bytes: kp.PublicKey,
	}
	pubPath := filepath.Join(dir, kp.Name+".pub")
	if err := os.WriteFile(pubPath, pem.EncodeToMemory(pubBlock), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}

// LoadKeypair loads a keypair from disk. Key files must not be symlinks and
// must not exceed 64 KB.
func LoadKeypair(dir, name string) (*Keypair, error) {
	privPath := filepath.Join(dir, name+".key")
	privPEM, err := safefile.ReadFileMax(privPath, 64*1024)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	privBlock, _ := pem.Decode(privPEM)
	if privBlock == nil {
		return nil, fmt.Errorf("invalid PEM in %s", privPath)
	}
	priv := ed25519.PrivateKey(privBlock.Bytes)
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key in %s has wrong size %d", privPath, len(priv))
	}

	pub, err := LoadPublicKey(dir, name)
	if err != nil {
		pub = priv.Public().(ed25519.PublicKey)
	}

	return &Keypair{
		Name:       name,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// LoadPublicKey loads only the public key from disk.
func LoadPublicKey(dir, name string) (ed25519.PublicKey, error) {
	pubPath := filepath.Join(dir, name+".pub")
	pubPEM, err := safefile.ReadFileMax(pubPath, 64*1024)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("invalid PEM in %s", pubPath)
	}
	return ed25519.PublicKey(pubBlock.Bytes), nil
}

// Fingerprint returns the SHA-256 hex fingerprint of a public key. It is
// stored as the signer_id on signed records.
func Fingerprint(pub ed25519.PublicKey) string {
	h := sha256.Sum256(pub)
	return hex.EncodeToString(h[:])
}
