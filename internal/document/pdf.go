package document

import (
	"fmt"
	"io"
	"os"
	"strings"

	ledongpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser extracts per-page text from PDF files.
// Files are validated up front so corrupted or password-protected
// documents are rejected before any extraction work.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser.
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse validates the PDF and returns one Page per document page.
func (p *PDFParser) Parse(filePath string) ([]Page, error) {
	if err := p.validate(filePath); err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf file: %w", err)
	}

	reader, err := ledongpdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedDocument, err)
	}

	var pages []Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A page with unextractable content does not fail the
			// whole document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// ParseReader spools the reader to a temp file; both validation and
// extraction need random access.
func (p *PDFParser) ParseReader(r io.Reader, filename string) ([]Page, error) {
	tmp, err := os.CreateTemp("", "pdfchat_upload_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to spool pdf content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return p.Parse(tmp.Name())
}

// validate rejects documents pdfcpu cannot read, distinguishing
// encrypted files from structurally broken ones.
func (p *PDFParser) validate(filePath string) error {
	conf := model.NewDefaultConfiguration()
	if err := api.ValidateFile(filePath, conf); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
			return ErrEncryptedDocument
		}
		return fmt.Errorf("%w: %v", ErrCorruptedDocument, err)
	}
	return nil
}

// PageCount returns the number of pages without extracting text.
func (p *PDFParser) PageCount(filePath string) (int, error) {
	count, err := api.PageCountFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptedDocument, err)
	}
	return count, nil
}
