package httpapi

import (
	"context"
	"fmt"

	"github.com/Atom1250/Compliance-App/pkg/chunker"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/pageextract"
	"github.com/Atom1250/Compliance-App/pkg/retrieval"
)

// buildCompanyIndex rebuilds the retrieval.Index for a company's current
// document scope: no chunk store persists chunks across requests (spec
// §4.3's chunk_ids are stable and cheap to recompute), so every run
// re-extracts and re-chunks each linked document on demand. Returns the
// sorted set of doc_hashes in scope alongside the index, since that set is
// itself an input to the run fingerprint (spec §4.11).
func (s *Server) buildCompanyIndex(ctx context.Context, tenantID, companyID string) (*retrieval.Index, []domain.Chunk, []string, error) {
	hashes, err := s.Links.LinkedDocHashes(ctx, tenantID, companyID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(hashes) == 0 {
		return retrieval.NewIndex(nil), nil, hashes, nil
	}

	var allChunks []domain.Chunk
	for _, h := range hashes {
		doc, err := s.DB.GetDocument(ctx, h)
		if err != nil {
			return nil, nil, nil, err
		}
		data, err := s.Docs.Get(ctx, h)
		if err != nil {
			return nil, nil, nil, err
		}
		extractor, err := pageextract.ForContentType(doc.ContentType)
		if err != nil {
			return nil, nil, nil, err
		}
		pages, err := extractor.Extract(h, data)
		if err != nil {
			return nil, nil, nil, domain.NewError(domain.KindDependency, "", fmt.Errorf("ingest: extract %s: %w", h, err))
		}
		chunks, err := chunker.ChunkDocument(pages, chunker.DefaultParams)
		if err != nil {
			return nil, nil, nil, domain.NewError(domain.KindDependency, "", fmt.Errorf("ingest: chunk %s: %w", h, err))
		}
		allChunks = append(allChunks, chunks...)
	}

	return retrieval.NewIndex(allChunks), allChunks, hashes, nil
}

// chunkTextByID indexes a set of chunks by chunk_id for evidence-record
// lookup when building an evidence pack (spec §4.12).
func chunkTextByID(chunks []domain.Chunk) map[string]domain.Chunk {
	out := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		out[c.ChunkID] = c
	}
	return out
}
