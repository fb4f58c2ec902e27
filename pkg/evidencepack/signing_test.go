package evidencepack_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/docstore"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/evidencepack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocStore(t *testing.T) *docstore.DocStore {
	t.Helper()
	fs, err := docstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return docstore.NewDocStore(fs)
}

func newTestRegistry(t *testing.T) *evidencepack.Registry {
	t.Helper()
	return evidencepack.NewRegistry(newTestDocStore(t), nil)
}

func TestDeriveTenantSigner_IsDeterministic(t *testing.T) {
	seed := []byte("master-seed-for-testing-only!!!")

	s1, err := evidencepack.DeriveTenantSigner(seed, "tenant-a")
	require.NoError(t, err)
	s2, err := evidencepack.DeriveTenantSigner(seed, "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, s1.PublicKey(), s2.PublicKey())

	sig1, err := s1.Sign([]byte("payload"))
	require.NoError(t, err)
	sig2, err := s2.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, sig1, sig2)
}

func TestDeriveTenantSigner_DiffersAcrossTenants(t *testing.T) {
	seed := []byte("master-seed-for-testing-only!!!")

	a, err := evidencepack.DeriveTenantSigner(seed, "tenant-a")
	require.NoError(t, err)
	b, err := evidencepack.DeriveTenantSigner(seed, "tenant-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestSignManifest_StampsAndRegistersEnvelope(t *testing.T) {
	seed := []byte("master-seed-for-testing-only!!!")
	signer, err := evidencepack.DeriveTenantSigner(seed, "tenant-a")
	require.NoError(t, err)
	registry := newTestRegistry(t)

	manifest := domain.RunManifest{RunID: "run-1", RunHash: "hash-1"}
	ref, err := evidencepack.SignManifest(context.Background(), registry, signer, &manifest)
	require.NoError(t, err)

	require.NotEmpty(t, ref)
	assert.Equal(t, ref, manifest.SignedEnvelopeRef)
	assert.NotEmpty(t, manifest.Signature)
	assert.Equal(t, signer.PublicKey(), manifest.SignatureKeyID)

	stored, err := registry.GetEntry(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, evidencepack.TypeRunManifest, stored.Type)
	assert.Equal(t, "run-1", stored.RunID)
	assert.Equal(t, manifest.Signature, stored.Signature)

	sigBytes, err := hex.DecodeString(stored.Signature)
	require.NoError(t, err)
	verifier, err := evidencepack.NewEd25519Verifier(stored.SignatureKeyID)
	require.NoError(t, err)
	assert.True(t, verifier.Verify(stored.Payload, sigBytes))
}

func TestSignManifest_NoSignerFails(t *testing.T) {
	manifest := domain.RunManifest{RunID: "run-1"}
	_, err := evidencepack.SignManifest(context.Background(), nil, nil, &manifest)
	assert.ErrorIs(t, err, evidencepack.ErrSignerNotConfigured)
}

func TestSignDecisionRecord_RegistersVerifiableEnvelope(t *testing.T) {
	seed := []byte("master-seed-for-testing-only!!!")
	signer, err := evidencepack.DeriveTenantSigner(seed, "tenant-a")
	require.NoError(t, err)
	registry := newTestRegistry(t)

	rec := evidencepack.DecisionRecord{
		DatapointID:    "dp-1",
		ObligationCode: "GHG-1",
		PresenceState:  "Present",
		CitedChunkIDs:  []string{"c1", "c2"},
	}
	ref, err := evidencepack.SignDecisionRecord(context.Background(), registry, signer, "run-1", rec)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	stored, err := registry.GetEntry(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, evidencepack.TypeDecisionRecord, stored.Type)
	assert.Equal(t, "run-1", stored.RunID)

	sigBytes, err := hex.DecodeString(stored.Signature)
	require.NoError(t, err)
	verifier, err := evidencepack.NewEd25519Verifier(stored.SignatureKeyID)
	require.NoError(t, err)
	assert.True(t, verifier.Verify(stored.Payload, sigBytes))
}

func TestSignDecisionRecord_NoSignerFails(t *testing.T) {
	_, err := evidencepack.SignDecisionRecord(context.Background(), nil, nil, "run-1", evidencepack.DecisionRecord{})
	assert.ErrorIs(t, err, evidencepack.ErrSignerNotConfigured)
}

func TestSignVerificationCheck_RegistersVerifiableEnvelope(t *testing.T) {
	seed := []byte("master-seed-for-testing-only!!!")
	signer, err := evidencepack.DeriveTenantSigner(seed, "tenant-a")
	require.NoError(t, err)
	registry := newTestRegistry(t)

	check := evidencepack.VerificationCheck{
		DatapointID: "dp-1",
		CheckKind:   "NUMERIC",
		ChunkID:     "c1",
		Passed:      false,
		Detail:      "NUMERIC_MISMATCH",
	}
	ref, err := evidencepack.SignVerificationCheck(context.Background(), registry, signer, "run-1", check)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	stored, err := registry.GetEntry(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, evidencepack.TypeVerificationCheck, stored.Type)
	assert.Equal(t, "run-1", stored.RunID)

	sigBytes, err := hex.DecodeString(stored.Signature)
	require.NoError(t, err)
	verifier, err := evidencepack.NewEd25519Verifier(stored.SignatureKeyID)
	require.NoError(t, err)
	assert.True(t, verifier.Verify(stored.Payload, sigBytes))
}

func TestSignVerificationCheck_NoSignerFails(t *testing.T) {
	_, err := evidencepack.SignVerificationCheck(context.Background(), nil, nil, "run-1", evidencepack.VerificationCheck{})
	assert.ErrorIs(t, err, evidencepack.ErrSignerNotConfigured)
}
