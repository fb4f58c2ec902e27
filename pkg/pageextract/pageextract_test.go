package pageextract_test

import (
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/pageextract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextExtractor_SplitsOnFormFeed(t *testing.T) {
	ext, err := pageextract.ForContentType("text/plain; charset=utf-8")
	require.NoError(t, err)

	pages, err := ext.Extract("deadbeef", []byte("page one\fpage two\fpage three"))
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "page one", pages[0].Text)
	assert.Equal(t, 8, pages[0].CharCount)
	assert.Equal(t, pageextract.ParserVersionText, pages[0].ParserVersion)
	assert.Equal(t, "page three", pages[2].Text)
}

func TestTextExtractor_Deterministic(t *testing.T) {
	ext, _ := pageextract.ForContentType("text/plain")
	data := []byte("alpha\fbeta")

	p1, err := ext.Extract("h1", data)
	require.NoError(t, err)
	p2, err := ext.Extract("h1", data)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
}

func TestForContentType_Unsupported(t *testing.T) {
	_, err := pageextract.ForContentType("image/png")
	require.Error(t, err)
}

func TestPDFExtractor_RecoversUncompressedText(t *testing.T) {
	ext, err := pageextract.ForContentType("application/pdf")
	require.NoError(t, err)

	pdf := []byte(`%PDF-1.4
1 0 obj
<< /Type /Page /Contents 2 0 R >>
endobj
2 0 obj
<< /Length 44 >>
stream
BT /F1 12 Tf (Hello World) Tj ET
endstream
endobj
`)

	pages, err := ext.Extract("feedface", pdf)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Hello World", pages[0].Text)
	assert.Equal(t, pageextract.ParserVersionPDF, pages[0].ParserVersion)
}

func TestPDFExtractor_EmptyPageNotOmitted(t *testing.T) {
	ext, _ := pageextract.ForContentType("application/pdf")

	pages, err := ext.Extract("abc123", []byte("%PDF-1.4\n%%EOF"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].CharCount)
	assert.Equal(t, "", pages[0].Text)
}
