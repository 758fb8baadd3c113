package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Parser extracts per-page plain text from a source document.
type Parser interface {
	// Parse parses the file at filePath and returns its pages in order.
	Parse(filePath string) ([]Page, error)

	// ParseReader parses document content from r.
	// filename is used to determine the document type.
	ParseReader(r io.Reader, filename string) ([]Page, error)
}

// Page is the extracted text of a single page. Number is 1-based.
// Formats without a page concept produce a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

// Chunk is a fragment of document text sized for embedding.
// Index is the position of the chunk within the document,
// Page the page the text was extracted from.
type Chunk struct {
	Text  string
	Index int
	Page  int
}

// Splitter cuts parsed pages into chunks.
type Splitter interface {
	Split(pages []Page) ([]Chunk, error)
}

// ContentType identifies a supported document format.
type ContentType string

const (
	PDF       ContentType = "pdf"
	Markdown  ContentType = "markdown"
	PlainText ContentType = "plaintext"
	Unknown   ContentType = "unknown"
)

// Document format errors surfaced before any processing starts.
var (
	ErrUnsupportedType   = errors.New("unsupported document type")
	ErrEncryptedDocument = errors.New("document is password protected")
	ErrCorruptedDocument = errors.New("document is corrupted or not a valid PDF")
	ErrEmptyDocument     = errors.New("no text content found in document")
)

// ParserFactory returns the parser matching the file's extension.
func ParserFactory(filePath string) (Parser, error) {
	switch detectContentType(filePath) {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// detectContentType detects the content type from the file extension.
func detectContentType(filePath string) ContentType {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// JoinPages concatenates page texts, used where a flat view of the
// document is needed.
func JoinPages(pages []Page) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}
