package retrieval_test

import (
	"context"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(id, text string, embedding []float32) domain.Chunk {
	return domain.Chunk{ChunkID: id, Text: text, Embedding: embedding}
}

func TestRetrieve_DeterministicTieBreakByChunkID(t *testing.T) {
	idx := retrieval.NewIndex([]domain.Chunk{
		chunk("b", "emissions target disclosure", nil),
		chunk("a", "emissions target disclosure", nil),
		chunk("c", "emissions target disclosure", nil),
	})

	top, _ := retrieval.Retrieve(context.Background(), idx, "emissions target", nil, retrieval.Policy{
		TopK: 3, LexicalWeight: 1, VectorWeight: 0,
	})

	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].Chunk.ChunkID)
	assert.Equal(t, "b", top[1].Chunk.ChunkID)
	assert.Equal(t, "c", top[2].Chunk.ChunkID)
}

func TestRetrieve_IsDeterministicAcrossCalls(t *testing.T) {
	idx := retrieval.NewIndex([]domain.Chunk{
		chunk("x1", "scope 1 emissions in tonnes", []float32{1, 0, 0}),
		chunk("x2", "scope 2 emissions in tonnes", []float32{0, 1, 0}),
	})

	q := []float32{0.9, 0.1, 0}
	top1, _ := retrieval.Retrieve(context.Background(), idx, "scope emissions", q, retrieval.DefaultPolicy)
	top2, _ := retrieval.Retrieve(context.Background(), idx, "scope emissions", q, retrieval.DefaultPolicy)

	assert.Equal(t, top1, top2)
}

func TestRetrieve_MissingEmbeddingDegradesGracefully(t *testing.T) {
	idx := retrieval.NewIndex([]domain.Chunk{
		chunk("no-embedding", "target disclosure text", nil),
	})

	top, _ := retrieval.Retrieve(context.Background(), idx, "target disclosure", []float32{1, 0}, retrieval.Policy{
		TopK: 1, LexicalWeight: 0.6, VectorWeight: 0.4,
	})

	require.Len(t, top, 1)
	assert.Equal(t, 0.0, top[0].VectorScore)
	assert.Greater(t, top[0].CombinedScore, 0.0)
}

func TestRetrieve_TopKBoundedByCandidateCount(t *testing.T) {
	idx := retrieval.NewIndex([]domain.Chunk{chunk("only", "text", nil)})

	top, all := retrieval.Retrieve(context.Background(), idx, "text", nil, retrieval.Policy{TopK: 5, LexicalWeight: 1})
	assert.Len(t, top, 1)
	assert.Len(t, all, 1)
}
