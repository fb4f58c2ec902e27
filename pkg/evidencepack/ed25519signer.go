package evidencepack

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Ed25519Signer signs evidence artifacts with a fixed key pair.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh key pair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("evidencepack: generate key: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// Ed25519SignerFromSeed reconstructs a signer from a 32-byte hex seed, for
// environments that pin a stable evidence-signing identity across restarts.
func Ed25519SignerFromSeed(hexSeed string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("evidencepack: decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("evidencepack: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (s *Ed25519Signer) Sign(payload []byte) (string, error) {
	sig := ed25519.Sign(s.priv, payload)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// DeriveTenantSigner derives a tenant-specific signer from a master seed
// via HKDF-SHA256 (masterSeed as IKM, a fixed salt, tenantID as info), so
// every tenant's evidence manifests are signed under a distinct key without
// the operator having to provision or rotate one keypair per tenant. The
// derivation is deterministic: the same (masterSeed, tenantID) pair always
// yields the same signing identity.
func DeriveTenantSigner(masterSeed []byte, tenantID string) (*Ed25519Signer, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("evidencepack: tenantID must not be empty")
	}
	reader := hkdf.New(sha256.New, masterSeed, []byte("compliance-app-evidence-signing-kdf"), []byte(tenantID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("evidencepack: derive tenant seed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Ed25519Verifier verifies signatures against a fixed public key.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier builds a verifier from a hex-encoded public key.
func NewEd25519Verifier(hexPubKey string) (*Ed25519Verifier, error) {
	pub, err := hex.DecodeString(hexPubKey)
	if err != nil {
		return nil, fmt.Errorf("evidencepack: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("evidencepack: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return &Ed25519Verifier{pub: ed25519.PublicKey(pub)}, nil
}

func (v *Ed25519Verifier) Verify(payload []byte, sig []byte) bool {
	return ed25519.Verify(v.pub, payload, sig)
}
