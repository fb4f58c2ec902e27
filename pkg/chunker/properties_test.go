//go:build property
// +build property

package chunker_test

import (
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/chunker"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestChunkID_IsDeterministicFunctionOfInputs locks spec §8 property 1:
// chunker(B,P).chunk_ids is a deterministic function of (B, P).
func TestChunkID_IsDeterministicFunctionOfInputs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("re-chunking identical bytes with identical params yields identical chunk_ids", prop.ForAll(
		func(text string, target, overlap int) bool {
			target = 20 + target%200
			overlap = overlap % target
			if overlap < 0 {
				overlap = -overlap
			}
			params := chunker.Params{TargetLength: target, Overlap: overlap}
			page := domain.Page{DocHash: "deadbeef", PageNumber: 1, Text: text}

			c1, err1 := chunker.ChunkPage(page, params)
			c2, err2 := chunker.ChunkPage(page, params)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			if len(c1) != len(c2) {
				return false
			}
			for i := range c1 {
				if c1[i].ChunkID != c2[i].ChunkID {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

// TestChunkPage_NeverCrossesPageBoundary locks spec §4.3's "operates per
// page, not across page boundaries": every chunk's offsets stay within the
// bounds of the page text it was cut from.
func TestChunkPage_NeverCrossesPageBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("chunk offsets never exceed page text length", prop.ForAll(
		func(text string, target, overlap int) bool {
			target = 10 + target%200
			overlap = overlap % target
			if overlap < 0 {
				overlap = -overlap
			}
			params := chunker.Params{TargetLength: target, Overlap: overlap}
			page := domain.Page{DocHash: "deadbeef", PageNumber: 1, Text: text}

			chunks, err := chunker.ChunkPage(page, params)
			if err != nil {
				return true
			}
			for _, c := range chunks {
				if c.StartOffset < 0 || c.EndOffset > len(text) || c.StartOffset >= c.EndOffset {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

// TestChunkID_FormulaIsInjectiveOverOffsets verifies distinct (doc, page,
// start, end) tuples never collide, so retrieval and evidence gating never
// silently merge two different spans of text under one chunk_id.
func TestChunkID_FormulaIsInjectiveOverOffsets(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct offset tuples never produce the same chunk_id", prop.ForAll(
		func(docHash string, page, s1, e1, s2, e2 int) bool {
			if s1 == s2 && e1 == e2 {
				return true
			}
			id1 := chunker.ChunkID(docHash, page, s1, e1)
			id2 := chunker.ChunkID(docHash, page, s2, e2)
			return id1 != id2
		},
		gen.AlphaString(),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
