// Package pageextract converts stored document bytes into an ordered
// sequence of Page records (spec §4.2). Extraction is deterministic:
// identical bytes and parser_version always produce byte-identical page
// text.
package pageextract

import (
	"strings"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

const (
	// ParserVersionText is stamped on pages extracted from text/plain.
	ParserVersionText = "text-v1"
	// ParserVersionPDF is stamped on pages extracted from application/pdf.
	ParserVersionPDF = "pdf-structscan-v1"
)

// Extractor converts document bytes of a given content type to pages.
type Extractor interface {
	Extract(docHash string, data []byte) ([]domain.Page, error)
}

// ForContentType returns the Extractor for a MIME content type, or an
// UNSUPPORTED_FORMAT error kind if none handles it.
func ForContentType(contentType string) (Extractor, error) {
	switch normalizeContentType(contentType) {
	case "text/plain":
		return TextExtractor{}, nil
	case "application/pdf":
		return PDFExtractor{}, nil
	default:
		return nil, domain.NewError(domain.KindValidation, "UNSUPPORTED_FORMAT",
			unsupportedFormatError(contentType))
	}
}

func normalizeContentType(ct string) string {
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

type unsupportedFormatErr struct{ contentType string }

func (e unsupportedFormatErr) Error() string {
	return "pageextract: unsupported content type: " + e.contentType
}

func unsupportedFormatError(ct string) error { return unsupportedFormatErr{contentType: ct} }

// TextExtractor splits text/plain bytes on form-feed (\f) page breaks.
type TextExtractor struct{}

func (TextExtractor) Extract(docHash string, data []byte) ([]domain.Page, error) {
	raw := string(data)
	parts := strings.Split(raw, "\f")

	pages := make([]domain.Page, 0, len(parts))
	for i, text := range parts {
		pages = append(pages, domain.Page{
			DocHash:       docHash,
			PageNumber:    i + 1,
			Text:          text,
			CharCount:     len(text),
			ParserVersion: ParserVersionText,
		})
	}
	return pages, nil
}
