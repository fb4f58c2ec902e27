package evidencepack

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BlobStore is the content-addressed backing store a Registry persists
// envelopes into. *docstore.DocStore satisfies this directly (spec §4.1's
// Put is idempotent by doc_hash, matching a registry's write-once needs).
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
}

// Registry manages the storage and signature verification of evidence
// envelopes inside a run's content-addressed evidence store.
type Registry struct {
	store    BlobStore
	verifier Verifier // optional; if set, VerifyEntry enforces signatures
}

// NewRegistry creates a new Registry. verifier is optional.
func NewRegistry(store BlobStore, verifier Verifier) *Registry {
	return &Registry{
		store:    store,
		verifier: verifier,
	}
}

// MaxEnvelopeSize bounds a single evidence envelope's payload, guarding
// against a malformed extraction response inflating the archive.
const MaxEnvelopeSize = 10 * 1024 * 1024

// PutEntry validates and persists an envelope, returning its content hash.
func (r *Registry) PutEntry(ctx context.Context, env *Envelope) (string, error) {
	if env == nil {
		return "", errors.New("evidencepack: nil envelope")
	}
	if env.Type == "" {
		return "", errors.New("evidencepack: missing envelope type")
	}
	if len(env.Payload) == 0 {
		return "", errors.New("evidencepack: missing payload")
	}
	if len(env.Payload) > MaxEnvelopeSize {
		return "", fmt.Errorf("evidencepack: payload exceeds limit of %d bytes", MaxEnvelopeSize)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("evidencepack: marshal envelope: %w", err)
	}

	return r.store.Put(ctx, data)
}

// GetEntry retrieves and unmarshals an envelope by hash.
func (r *Registry) GetEntry(ctx context.Context, hash string) (*Envelope, error) {
	data, err := r.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("evidencepack: corrupt envelope: %w", err)
	}

	return &env, nil
}

// VerifyEntry checks the structural and cryptographic integrity of a
// stored envelope. Fails closed: an unsigned envelope, or one with no
// configured verifier, is never reported valid.
func (r *Registry) VerifyEntry(ctx context.Context, hash string) (bool, []string, error) {
	env, err := r.GetEntry(ctx, hash)
	if err != nil {
		return false, nil, err
	}

	var reasons []string
	valid := true

	if env.Type == "" {
		valid = false
		reasons = append(reasons, "missing type")
	}

	if env.Signature == "" || env.SignatureKeyID == "" {
		return false, append(reasons, "missing signature or key_id"), nil
	}

	if r.verifier == nil {
		return false, append(reasons, "evidence signature verifier not configured (fail-closed)"), nil
	}

	sigHex := strings.TrimPrefix(env.Signature, "hex:")
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, append(reasons, "signature decode failed"), nil
	}

	if !r.verifier.Verify(env.Payload, sigBytes) {
		valid = false
		reasons = append(reasons, "signature invalid")
	}

	return valid, reasons, nil
}
