package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func docxParagraph(text string) string {
	var escaped bytes.Buffer
	xml.EscapeText(&escaped, []byte(text))
	return `<w:p><w:r><w:t>` + escaped.String() + `</w:t></w:r></w:p>`
}

func makeDocx(t *testing.T, body, author string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	doc, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = doc.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + docxNS + `><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)

	if author != "" {
		core, err := zw.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = core.Write([]byte(`<?xml version="1.0"?>` +
			`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
			`xmlns:dc="http://purl.org/dc/elements/1.1/">` +
			`<dc:creator>` + author + `</dc:creator></cp:coreProperties>`))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	data := makeDocx(t, docxParagraph("First paragraph.")+docxParagraph("Second paragraph."), "Ada Lovelace")

	text, author, err := extractDOCX(data)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
	assert.Equal(t, "Ada Lovelace", author)
}

func TestExtractDOCXJoinsRuns(t *testing.T) {
	body := `<w:p><w:r><w:t>Split </w:t></w:r><w:r><w:t>across runs.</w:t></w:r></w:p>`
	data := makeDocx(t, body, "")

	text, author, err := extractDOCX(data)
	require.NoError(t, err)
	assert.Equal(t, "Split across runs.", text)
	assert.Empty(t, author)
}

func TestExtractDOCXKeepsEmptyParagraphs(t *testing.T) {
	body := docxParagraph("Above.") + `<w:p/>` + docxParagraph("Below.")
	data := makeDocx(t, body, "")

	text, _, err := extractDOCX(data)
	require.NoError(t, err)
	assert.Equal(t, "Above.\n\nBelow.", text)
}

func TestExtractDOCXEscapedText(t *testing.T) {
	data := makeDocx(t, docxParagraph("Fish & chips <cheap>"), "")

	text, _, err := extractDOCX(data)
	require.NoError(t, err)
	assert.Equal(t, "Fish & chips <cheap>", text)
}

func TestExtractDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	part, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = part.Write([]byte(`<styles/>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, _, err = extractDOCX(buf.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml")
}

func TestExtractDOCXNotAZip(t *testing.T) {
	_, _, err := extractDOCX([]byte("plain text, not a zip archive"))
	require.Error(t, err)
}
