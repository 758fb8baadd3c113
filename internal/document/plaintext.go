package document

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// PlainTextParser reads .txt files as a single page.
type PlainTextParser struct{}

// NewPlainTextParser creates a new plain text parser.
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse reads a plain text file.
func (p *PlainTextParser) Parse(filePath string) ([]Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %w", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader reads plain text content from r.
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) ([]Page, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text content: %w", err)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, ErrEmptyDocument
	}

	return []Page{{Number: 1, Text: text}}, nil
}
