// Package retrieval implements the hybrid lexical+vector retriever of
// spec §4.4, grounded in original_source's
// apps/api/app/services/retrieval.py (RetrievalPolicy defaults, tokenize,
// lexical score, cosine similarity, deterministic tie-break).
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"golang.org/x/text/unicode/norm"
)

// Policy is the set of retrieval parameters that participate in the run
// fingerprint (spec §4.4, §4.11). Defaults mirror
// original_source/apps/api/app/services/retrieval.py's RetrievalPolicy.
type Policy struct {
	TopK              int
	LexicalWeight     float64
	VectorWeight      float64
	NormalizationMode string
}

// DefaultPolicy is the teacher-style shipped default.
var DefaultPolicy = Policy{
	TopK:              5,
	LexicalWeight:     0.6,
	VectorWeight:      0.4,
	NormalizationMode: "nfc-lower",
}

// Index is the queryable corpus: every chunk in a company's linked
// document scope, with optional embeddings.
type Index struct {
	chunks []domain.Chunk
}

// NewIndex builds an Index over chunks already filtered to the calling
// company's linked doc_hash set (spec §4.4 step 5) — scope filtering
// happens before the Index is constructed, never inside Retrieve.
func NewIndex(chunks []domain.Chunk) *Index {
	return &Index{chunks: chunks}
}

// Result is one ranked chunk plus its retrieval diagnostics.
type Result struct {
	Chunk         domain.Chunk
	LexicalScore  float64
	VectorScore   float64
	CombinedScore float64
}

// Retrieve runs the hybrid scoring over the index and returns the top-k
// results plus the full ranked candidate list (for diagnostic/trace
// persistence, SPEC_FULL §7.2), both in strict deterministic order:
// descending combined score, ties broken by ascending chunk_id.
func Retrieve(ctx context.Context, idx *Index, query string, queryEmbedding []float32, policy Policy) (top []Result, all []Result) {
	queryTokens := tokenize(query)

	all = make([]Result, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		lex := lexicalScore(queryTokens, tokenize(c.Text))
		vec := 0.0
		if len(c.Embedding) > 0 && len(queryEmbedding) > 0 {
			vec = cosineSimilarity(queryEmbedding, c.Embedding)
		}
		combined := policy.LexicalWeight*lex + policy.VectorWeight*vec
		all = append(all, Result{Chunk: c, LexicalScore: lex, VectorScore: vec, CombinedScore: combined})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CombinedScore != all[j].CombinedScore {
			return all[i].CombinedScore > all[j].CombinedScore
		}
		return all[i].Chunk.ChunkID < all[j].Chunk.ChunkID
	})

	k := policy.TopK
	if k > len(all) {
		k = len(all)
	}
	top = all[:k]
	return top, all
}

// tokenize lowercases and splits on non-letter/digit runes, NFC-
// normalizing first so accented text tokenizes consistently regardless of
// input composition form.
func tokenize(s string) []string {
	normalized := norm.NFC.String(s)
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// lexicalScore is a normalized term-hit-ratio: the fraction of distinct
// query tokens that appear anywhere in the candidate's token set.
func lexicalScore(queryTokens, candidateTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	present := make(map[string]bool, len(candidateTokens))
	for _, t := range candidateTokens {
		present[t] = true
	}

	seen := make(map[string]bool, len(queryTokens))
	hits := 0
	for _, qt := range queryTokens {
		if seen[qt] {
			continue
		}
		seen[qt] = true
		if present[qt] {
			hits++
		}
	}

	return float64(hits) / float64(len(seen))
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors; mismatched lengths or zero vectors score 0 rather than error,
// since embedding availability is optional (spec §4.4).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
