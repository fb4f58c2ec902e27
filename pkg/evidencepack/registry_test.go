package evidencepack_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/evidencepack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_VerifyEntry_FailsClosedWithoutVerifier(t *testing.T) {
	fs := newTestRegistry(t)
	signer, err := evidencepack.DeriveTenantSigner([]byte("seed-material-32-bytes-long!!!!"), "tenant-a")
	require.NoError(t, err)

	env := &evidencepack.Envelope{Type: evidencepack.TypeRunManifest, RunID: "r1", Payload: []byte(`{"a":1}`)}
	require.NoError(t, evidencepack.SignEnvelope(env, signer))

	ref, err := fs.PutEntry(context.Background(), env)
	require.NoError(t, err)

	ok, reasons, err := fs.VerifyEntry(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reasons, "evidence signature verifier not configured (fail-closed)")
}

func TestRegistry_VerifyEntry_ValidSignatureVerifies(t *testing.T) {
	fs := newTestDocStore(t)

	signer, err := evidencepack.DeriveTenantSigner([]byte("seed-material-32-bytes-long!!!!"), "tenant-a")
	require.NoError(t, err)
	verifier, err := evidencepack.NewEd25519Verifier(signer.PublicKey())
	require.NoError(t, err)
	registry := evidencepack.NewRegistry(fs, verifier)

	env := &evidencepack.Envelope{Type: evidencepack.TypeRunManifest, RunID: "r1", Payload: []byte(`{"a":1}`)}
	require.NoError(t, evidencepack.SignEnvelope(env, signer))

	ref, err := registry.PutEntry(context.Background(), env)
	require.NoError(t, err)

	ok, reasons, err := registry.VerifyEntry(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reasons)
}

func TestRegistry_VerifyEntry_TamperedPayloadFails(t *testing.T) {
	fs := newTestDocStore(t)

	signer, err := evidencepack.DeriveTenantSigner([]byte("seed-material-32-bytes-long!!!!"), "tenant-a")
	require.NoError(t, err)
	verifier, err := evidencepack.NewEd25519Verifier(signer.PublicKey())
	require.NoError(t, err)
	registry := evidencepack.NewRegistry(fs, verifier)

	env := &evidencepack.Envelope{Type: evidencepack.TypeRunManifest, RunID: "r1", Payload: []byte(`{"a":1}`)}
	require.NoError(t, evidencepack.SignEnvelope(env, signer))
	env.Payload = []byte(`{"a":2}`) // tamper after signing, before storage

	ref, err := registry.PutEntry(context.Background(), env)
	require.NoError(t, err)

	ok, reasons, err := registry.VerifyEntry(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reasons, "signature invalid")
}

func TestEd25519Verifier_RejectsMalformedPublicKey(t *testing.T) {
	_, err := evidencepack.NewEd25519Verifier("not-hex!!")
	assert.Error(t, err)

	_, err = evidencepack.NewEd25519Verifier(hex.EncodeToString([]byte("too-short")))
	assert.Error(t, err)
}
