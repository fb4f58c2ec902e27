package evidencepack_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/evidencepack"
	"github.com/Atom1250/Compliance-App/pkg/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() evidencepack.ArchiveInput {
	return evidencepack.ArchiveInput{
		Manifest:    domain.RunManifest{RunID: "r1", RunHash: "h1"},
		Assessments: []domain.Assessment{{DatapointKey: "D1", Status: domain.StatusPresent}},
		Evidence:    []evidencepack.EvidenceRecord{{ChunkID: "c1", DocHash: "d1", Text: "x"}},
		Documents:   map[string][]byte{},
	}
}

func listEntries(t *testing.T, archive []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	return names
}

func TestBuildArchive_EntriesInLexicographicOrder(t *testing.T) {
	archive, err := evidencepack.BuildArchive(sampleInput())
	require.NoError(t, err)

	names := listEntries(t, archive)
	sorted := append([]string{}, names...)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}
	assert.Contains(t, names, "manifest.json")
	assert.Contains(t, names, "assessments.jsonl")
	assert.Contains(t, names, "evidence.jsonl")
}

func TestBuildArchive_IsByteStableForIdenticalInput(t *testing.T) {
	a1, err := evidencepack.BuildArchive(sampleInput())
	require.NoError(t, err)
	a2, err := evidencepack.BuildArchive(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestBuildArchive_FailsOnDocumentHashMismatch(t *testing.T) {
	input := sampleInput()
	input.Documents = map[string][]byte{"deadbeef": []byte("not matching hash")}
	_, err := evidencepack.BuildArchive(input)
	require.Error(t, err)
	assert.Equal(t, domain.KindIntegrity, domain.KindOf(err))
}

func extractEntries(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	out := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = data
	}
	return out
}

func TestBuildArchive_StampsAndVerifiesEvidenceMerkleRoot(t *testing.T) {
	archive, err := evidencepack.BuildArchive(sampleInput())
	require.NoError(t, err)

	entries := extractEntries(t, archive)
	var manifest domain.RunManifest
	require.NoError(t, json.Unmarshal(entries["manifest.json"], &manifest))
	require.NotEmpty(t, manifest.EvidenceMerkleRoot)

	proof, err := evidencepack.EvidenceInclusionProof(entries, "evidence.jsonl")
	require.NoError(t, err)
	assert.Equal(t, manifest.EvidenceMerkleRoot, proof.MerkleRoot)
	assert.True(t, merkle.VerifyInclusionProof(proof, manifest.EvidenceMerkleRoot))
}

func TestBuildArchive_InclusionProofRejectsTamperedEntry(t *testing.T) {
	archive, err := evidencepack.BuildArchive(sampleInput())
	require.NoError(t, err)

	entries := extractEntries(t, archive)
	var manifest domain.RunManifest
	require.NoError(t, json.Unmarshal(entries["manifest.json"], &manifest))

	entries["evidence.jsonl"] = append(entries["evidence.jsonl"], []byte("tampered")...)
	proof, err := evidencepack.EvidenceInclusionProof(entries, "evidence.jsonl")
	require.NoError(t, err)
	assert.False(t, merkle.VerifyInclusionProof(proof, manifest.EvidenceMerkleRoot))
}

func TestVerifyEvidenceEntry_SingleEntryRoundTrip(t *testing.T) {
	archive, err := evidencepack.BuildArchive(sampleInput())
	require.NoError(t, err)

	entries := extractEntries(t, archive)
	var manifest domain.RunManifest
	require.NoError(t, json.Unmarshal(entries["manifest.json"], &manifest))

	proof, err := evidencepack.EvidenceInclusionProof(entries, "evidence.jsonl")
	require.NoError(t, err)

	assert.True(t, evidencepack.VerifyEvidenceEntry(entries["evidence.jsonl"], proof, manifest.EvidenceMerkleRoot))
	assert.False(t, evidencepack.VerifyEvidenceEntry(append(entries["evidence.jsonl"], []byte("x")...), proof, manifest.EvidenceMerkleRoot))
}
