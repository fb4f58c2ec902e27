package evidencepack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

var ErrSignerNotConfigured = errors.New("evidencepack: signer not configured (fail-closed)")

// Signer produces a hex-encoded signature over a payload and reports the
// public key identity used to produce it.
type Signer interface {
	Sign(payload []byte) (string, error)
	PublicKey() string
}

// Verifier checks a hex-decoded signature against a payload.
type Verifier interface {
	Verify(payload []byte, sig []byte) bool
}

// SignEnvelope signs the envelope payload and stamps signature metadata.
// Verification in Registry.VerifyEntry checks signatures over Payload
// bytes, so that's what gets signed here.
func SignEnvelope(env *Envelope, signer Signer) error {
	if env == nil {
		return errors.New("evidencepack: nil envelope")
	}
	if signer == nil {
		return ErrSignerNotConfigured
	}
	if len(env.Payload) == 0 {
		return errors.New("evidencepack: missing payload")
	}

	sig, err := signer.Sign(env.Payload)
	if err != nil {
		return fmt.Errorf("evidencepack: sign failed: %w", err)
	}
	env.Signature = sig
	env.SignatureKeyID = signer.PublicKey()

	return nil
}

// SignManifest wraps a completed run's manifest in a TypeRunManifest
// envelope, signs it, and registers the envelope in the content-addressed
// evidence registry so an auditor can independently fetch and verify the
// exact bytes a run manifest was signed over (spec §4.12's manifest is a
// distinct artifact from this signed audit record — SignManifest never
// mutates the manifest.json entry written into the evidence archive).
//
// It stamps manifest.Signature, manifest.SignatureKeyID, and
// manifest.SignedEnvelopeRef in place and returns the envelope's registry
// ref. Signing runs before those fields are set, so the signed payload
// never signs over its own signature.
func SignManifest(ctx context.Context, registry *Registry, signer Signer, manifest *domain.RunManifest) (string, error) {
	if signer == nil {
		return "", ErrSignerNotConfigured
	}
	payload, err := json.Marshal(*manifest)
	if err != nil {
		return "", fmt.Errorf("evidencepack: marshal manifest payload: %w", err)
	}

	env := &Envelope{
		Type:          TypeRunManifest,
		SchemaVersion: "1",
		RunID:         manifest.RunID,
		Timestamp:     manifest.GeneratedAt,
		Payload:       payload,
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if err := SignEnvelope(env, signer); err != nil {
		return "", err
	}

	manifest.Signature = env.Signature
	manifest.SignatureKeyID = env.SignatureKeyID

	if registry == nil {
		return "", nil
	}
	ref, err := registry.PutEntry(ctx, env)
	if err != nil {
		return "", fmt.Errorf("evidencepack: register signed manifest: %w", err)
	}
	manifest.SignedEnvelopeRef = ref
	return ref, nil
}

// SignDecisionRecord wraps one datapoint's presence decision in a
// TypeDecisionRecord envelope, signs it, and registers it in the evidence
// registry — the per-datapoint counterpart to SignManifest's run-level
// envelope, so an auditor can fetch and verify a single datapoint's
// evidence trail without pulling the whole run manifest.
func SignDecisionRecord(ctx context.Context, registry *Registry, signer Signer, runID string, rec DecisionRecord) (string, error) {
	if signer == nil {
		return "", ErrSignerNotConfigured
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("evidencepack: marshal decision record payload: %w", err)
	}

	env := &Envelope{
		Type:          TypeDecisionRecord,
		SchemaVersion: "1",
		RunID:         runID,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
	if err := SignEnvelope(env, signer); err != nil {
		return "", err
	}

	if registry == nil {
		return "", nil
	}
	ref, err := registry.PutEntry(ctx, env)
	if err != nil {
		return "", fmt.Errorf("evidencepack: register signed decision record: %w", err)
	}
	return ref, nil
}

// SignVerificationCheck wraps one verification-engine check outcome in a
// TypeVerificationCheck envelope, signs it, and registers it. Grouping each
// check under its own envelope (rather than folding it into the decision
// record) lets an auditor verify the check that caused a downgrade
// independently of the datapoint's final presence state.
func SignVerificationCheck(ctx context.Context, registry *Registry, signer Signer, runID string, check VerificationCheck) (string, error) {
	if signer == nil {
		return "", ErrSignerNotConfigured
	}
	payload, err := json.Marshal(check)
	if err != nil {
		return "", fmt.Errorf("evidencepack: marshal verification check payload: %w", err)
	}

	env := &Envelope{
		Type:          TypeVerificationCheck,
		SchemaVersion: "1",
		RunID:         runID,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
	if err := SignEnvelope(env, signer); err != nil {
		return "", err
	}

	if registry == nil {
		return "", nil
	}
	ref, err := registry.PutEntry(ctx, env)
	if err != nil {
		return "", fmt.Errorf("evidencepack: register signed verification check: %w", err)
	}
	return ref, nil
}
