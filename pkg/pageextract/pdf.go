package pageextract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// PDFExtractor is a minimal structural scanner over uncompressed PDF
// object streams: no library in the retrieved example pack performs
// PDF text-layer decoding (structural-only tools exist, page-text
// extraction does not), so this one routine is intentionally stdlib
// (see DESIGN.md).
//
// It counts pages via /Type /Page object headers and recovers text by
// decoding Tj/TJ show-text operators inside each page's content stream.
// FlateDecode-compressed streams yield empty text, not an error — per
// spec §4.2, non-text-recoverable pages still get a char_count=0 record.
type PDFExtractor struct{}

var (
	pageObjRE     = regexp.MustCompile(`/Type\s*/Page\b`)
	contentsRefRE = regexp.MustCompile(`/Contents\s+(\d+)\s+\d+\s+R`)
	streamObjRE   = regexp.MustCompile(`(?s)(\d+)\s+\d+\s+obj.*?stream\r?\n(.*?)endstream`)
	flateRE       = regexp.MustCompile(`/Filter\s*/FlateDecode`)
	tjOperatorRE  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjArrayRE     = regexp.MustCompile(`(?s)\[((?:[^\[\]]|\\.)*)\]\s*TJ`)
	tjArrayStrRE  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

func (PDFExtractor) Extract(docHash string, data []byte) ([]domain.Page, error) {
	streams := indexStreamsByObjectNumber(data)

	pageCount := len(pageObjRE.FindAllIndex(data, -1))
	if pageCount == 0 {
		// No recognizable /Type /Page headers: treat as a single
		// empty page rather than omitting the document entirely.
		pageCount = 1
	}

	pageContentObjNums := findContentObjectNumbers(data)

	pages := make([]domain.Page, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		var text string
		if i < len(pageContentObjNums) {
			if stream, ok := streams[pageContentObjNums[i]]; ok {
				text = decodeTextFromContentStream(stream)
			}
		}
		pages = append(pages, domain.Page{
			DocHash:       docHash,
			PageNumber:    i + 1,
			Text:          text,
			CharCount:     len(text),
			ParserVersion: ParserVersionPDF,
		})
	}
	return pages, nil
}

// findContentObjectNumbers walks /Contents references in document order,
// one per /Type /Page object.
func findContentObjectNumbers(data []byte) []int {
	var nums []int
	pageSpans := pageObjRE.FindAllIndex(data, -1)
	for _, span := range pageSpans {
		// Search forward from the page object header for its /Contents
		// reference, bounded to the next "endobj" to avoid bleeding into
		// a neighboring object.
		end := bytes.Index(data[span[1]:], []byte("endobj"))
		window := data[span[1]:]
		if end >= 0 {
			window = data[span[1] : span[1]+end]
		}
		m := contentsRefRE.FindSubmatch(window)
		if m == nil {
			nums = append(nums, -1)
			continue
		}
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			nums = append(nums, -1)
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

// indexStreamsByObjectNumber maps object number to raw (undecoded) stream
// bytes, skipping FlateDecode-compressed streams (unrecoverable without a
// zlib dependency this extractor intentionally doesn't carry for a single
// narrow use site). Each object is matched on its own, up to its "endobj",
// so a stream is filed under the object that holds it.
func indexStreamsByObjectNumber(data []byte) map[int][]byte {
	out := make(map[int][]byte)
	for _, obj := range bytes.Split(data, []byte("endobj")) {
		m := streamObjRE.FindSubmatchIndex(obj)
		if m == nil {
			continue
		}
		objNum, err := strconv.Atoi(string(obj[m[2]:m[3]]))
		if err != nil {
			continue
		}
		header := obj[m[3]:m[4]]
		if flateRE.Match(header) {
			continue
		}
		out[objNum] = obj[m[4]:m[5]]
	}
	return out
}

func decodeTextFromContentStream(stream []byte) string {
	var b strings.Builder

	for _, m := range tjOperatorRE.FindAllSubmatch(stream, -1) {
		b.WriteString(unescapePDFString(m[1]))
		b.WriteByte(' ')
	}

	for _, m := range tjArrayRE.FindAllSubmatch(stream, -1) {
		for _, sm := range tjArrayStrRE.FindAllSubmatch(m[1], -1) {
			b.WriteString(unescapePDFString(sm[1]))
		}
		b.WriteByte(' ')
	}

	return strings.TrimSpace(b.String())
}

func unescapePDFString(raw []byte) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i == len(raw)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '(', ')', '\\':
			b.WriteByte(raw[i])
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}
