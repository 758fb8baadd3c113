package document

import (
	"os"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "pdfchat-test-*"+ext)
	require.NoError(t, err)
	_, err = tmpFile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

func createTempPDF(t *testing.T, pageTexts ...string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "pdfchat-test-*.pdf")
	require.NoError(t, err)
	defer tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Arial", "", 12)
	for _, text := range pageTexts {
		doc.AddPage()
		doc.MultiCell(0, 10, text, "", "", false)
	}
	require.NoError(t, doc.Output(tmpFile))
	return tmpFile.Name()
}

func pagesText(pages []Page) string {
	return JoinPages(pages)
}

func TestPlainTextParser(t *testing.T) {
	file := createTempFile(t, "Hello, this is a plain text file.\nSecond line.", ".txt")

	parser := NewPlainTextParser()
	pages, err := parser.Parse(file)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "plain text file")
}

func TestMarkdownParser(t *testing.T) {
	file := createTempFile(t, "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2", ".md")

	parser := NewMarkdownParser()
	pages, err := parser.Parse(file)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "markdown")
	assert.Contains(t, pages[0].Text, "Item 1")
}

func TestPDFParser(t *testing.T) {
	t.Run("SinglePage", func(t *testing.T) {
		file := createTempPDF(t, "This is a PDF test.\nSecond line.")

		parser := NewPDFParser()
		pages, err := parser.Parse(file)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, 1, pages[0].Number)
		assert.Contains(t, pages[0].Text, "PDF test")
	})

	t.Run("MultiPage", func(t *testing.T) {
		file := createTempPDF(t,
			"Alpha content on the first page.",
			"Bravo content on the second page.",
			"Charlie content on the third page.")

		parser := NewPDFParser()
		pages, err := parser.Parse(file)
		require.NoError(t, err)
		require.Len(t, pages, 3)

		assert.Equal(t, 1, pages[0].Number)
		assert.Equal(t, 2, pages[1].Number)
		assert.Equal(t, 3, pages[2].Number)
		assert.Contains(t, pages[0].Text, "Alpha")
		assert.Contains(t, pages[1].Text, "Bravo")
		assert.Contains(t, pages[2].Text, "Charlie")
	})

	t.Run("NotAPDF", func(t *testing.T) {
		file := createTempFile(t, "this is definitely not a pdf", ".pdf")

		parser := NewPDFParser()
		_, err := parser.Parse(file)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCorruptedDocument)
	})
}

func TestPDFParserPageCount(t *testing.T) {
	file := createTempPDF(t, "page one", "page two")

	parser := NewPDFParser().(*PDFParser)
	count, err := parser.PageCount(file)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestParserFactory(t *testing.T) {
	txtFile := createTempFile(t, "plain text", ".txt")
	mdFile := createTempFile(t, "# Markdown", ".md")
	pdfFile := createTempPDF(t, "PDF content")

	tests := []struct {
		file     string
		expected string
	}{
		{txtFile, "plain text"},
		{mdFile, "Markdown"},
		{pdfFile, "PDF content"},
	}

	for _, tt := range tests {
		parser, err := ParserFactory(tt.file)
		require.NoError(t, err)

		pages, err := parser.Parse(tt.file)
		require.NoError(t, err)
		assert.Contains(t, pagesText(pages), tt.expected)
	}

	_, err := ParserFactory("document.docx")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
