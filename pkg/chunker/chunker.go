// Package chunker splits extracted pages into fixed-rule, stably-IDed
// chunks (spec §4.3). Chunking never crosses a page boundary; re-chunking
// identical bytes with identical parameters always yields identical
// chunk_ids.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// Params are the fixed-rule chunking parameters. Both fields participate
// in the run fingerprint (spec §4.3), so callers must pass the exact
// values used for a run into every downstream hash.
type Params struct {
	TargetLength int // target chunk length in characters
	Overlap      int // character overlap between consecutive chunks on the same page
}

// DefaultParams mirrors the teacher's convention of shipping a sane
// default rather than requiring every caller to specify config.
var DefaultParams = Params{TargetLength: 1000, Overlap: 100}

// ChunkPage splits one page's text into chunks in (start_offset) order.
func ChunkPage(page domain.Page, params Params) ([]domain.Chunk, error) {
	if params.TargetLength <= 0 {
		return nil, fmt.Errorf("chunker: target length must be positive, got %d", params.TargetLength)
	}
	if params.Overlap < 0 || params.Overlap >= params.TargetLength {
		return nil, fmt.Errorf("chunker: overlap must be in [0, target_length), got %d", params.Overlap)
	}

	text := page.Text
	if text == "" {
		return nil, nil
	}

	stride := params.TargetLength - params.Overlap
	var chunks []domain.Chunk

	for start := 0; start < len(text); start += stride {
		end := start + params.TargetLength
		if end > len(text) {
			end = len(text)
		}

		chunkID := ChunkID(page.DocHash, page.PageNumber, start, end)
		chunks = append(chunks, domain.Chunk{
			ChunkID:     chunkID,
			DocHash:     page.DocHash,
			PageNumber:  page.PageNumber,
			StartOffset: start,
			EndOffset:   end,
			Text:        text[start:end],
			TokenCount:  approximateTokenCount(text[start:end]),
		})

		if end == len(text) {
			break
		}
	}

	return chunks, nil
}

// ChunkDocument chunks every page of a document in (page, start_offset)
// order.
func ChunkDocument(pages []domain.Page, params Params) ([]domain.Chunk, error) {
	var all []domain.Chunk
	for _, p := range pages {
		cs, err := ChunkPage(p, params)
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	return all, nil
}

// ChunkID computes the stable, content-derived chunk identifier of spec §3:
// SHA-256(doc_hash || ':' || page_number || ':' || start_offset || ':' || end_offset).
func ChunkID(docHash string, pageNumber, startOffset, endOffset int) string {
	input := fmt.Sprintf("%s:%d:%d:%d", docHash, pageNumber, startOffset, endOffset)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// approximateTokenCount is a simple whitespace-delimited token count; it
// does not need to match any particular tokenizer's count exactly, only
// be deterministic for a given chunk of text.
func approximateTokenCount(text string) int {
	count := 0
	inToken := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inToken {
			count++
			inToken = true
		} else if isSpace {
			inToken = false
		}
	}
	return count
}
