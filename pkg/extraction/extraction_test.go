package extraction_test

import (
	"context"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/extraction"
	"github.com/Atom1250/Compliance-App/pkg/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	record *extraction.Record
	err    error
}

func (s stubProvider) Identity() string { return "stub:v1" }
func (s stubProvider) Extract(ctx context.Context, p extraction.Prompt) (*extraction.Record, error) {
	return s.record, s.err
}

func dp() domain.Datapoint {
	return domain.Datapoint{DatapointKey: "D1", Title: "GHG emissions", DatapointType: domain.DatapointMetric}
}

func TestExtract_PresentWithEvidencePersists(t *testing.T) {
	p := stubProvider{record: &extraction.Record{
		Status:           string(domain.StatusPresent),
		Value:            "120",
		Unit:             "tCO2e",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found in table 4",
	}}
	a, hash, err := extraction.Extract(context.Background(), p, dp(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPresent, a.Status)
	assert.NotEmpty(t, hash)
	assert.Equal(t, hash, a.PromptHash)
}

func TestExtract_PresentWithoutEvidenceDowngradesToAbsent(t *testing.T) {
	p := stubProvider{record: &extraction.Record{
		Status:           string(domain.StatusPresent),
		Value:            "120",
		EvidenceChunkIDs: []string{},
	}}
	a, _, err := extraction.Extract(context.Background(), p, dp(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbsent, a.Status)
	assert.Contains(t, a.Rationale, "EVIDENCE_MISSING")
}

func TestExtract_MissingEvidenceFieldFailsProviderSchema(t *testing.T) {
	p := stubProvider{record: &extraction.Record{Status: string(domain.StatusPresent)}}
	_, _, err := extraction.Extract(context.Background(), p, dp(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindProviderSchema, domain.KindOf(err))
}

func TestExtract_UnrecognizedStatusFailsProviderSchema(t *testing.T) {
	p := stubProvider{record: &extraction.Record{Status: "Maybe", EvidenceChunkIDs: []string{}}}
	_, _, err := extraction.Extract(context.Background(), p, dp(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindProviderSchema, domain.KindOf(err))
}

func TestBuildPrompt_PreservesRetrievalOrder(t *testing.T) {
	results := []retrieval.Result{
		{Chunk: domain.Chunk{ChunkID: "b", Text: "second"}},
		{Chunk: domain.Chunk{ChunkID: "a", Text: "first"}},
	}
	p := extraction.BuildPrompt(dp(), results)
	require.Len(t, p.Chunks, 2)
	assert.Equal(t, "b", p.Chunks[0].ChunkID)
	assert.Equal(t, "a", p.Chunks[1].ChunkID)
}

func TestPromptHash_DeterministicForEquivalentPrompt(t *testing.T) {
	results := []retrieval.Result{{Chunk: domain.Chunk{ChunkID: "a", Text: "x"}}}
	h1, err := extraction.PromptHash(extraction.BuildPrompt(dp(), results))
	require.NoError(t, err)
	h2, err := extraction.PromptHash(extraction.BuildPrompt(dp(), results))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestFallbackProvider_AlwaysAbsent(t *testing.T) {
	r, err := extraction.FallbackProvider{}.Extract(context.Background(), extraction.Prompt{})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusAbsent), r.Status)
}
