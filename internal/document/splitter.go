package document

import (
	"fmt"
	"strings"
	"unicode"
)

// SplitType selects the chunking strategy.
type SplitType string

const (
	// ByParagraph splits on blank lines, then merges and re-cuts to fit.
	ByParagraph SplitType = "paragraph"
	// BySentence splits on sentence delimiters.
	BySentence SplitType = "sentence"
	// ByLength cuts fixed-size windows with overlap.
	ByLength SplitType = "length"
)

// SplitterConfig configures the text splitter.
type SplitterConfig struct {
	SplitType    SplitType
	ChunkSize    int // target chunk size in bytes
	ChunkOverlap int // overlap between adjacent length-based chunks
	MaxChunks    int // 0 means unlimited
}

// DefaultSplitterConfig returns the default splitter configuration.
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		SplitType:    ByParagraph,
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MaxChunks:    0,
	}
}

// TextSplitter cuts parsed pages into embedding-sized chunks.
// Chunks never span page boundaries, so every chunk keeps an exact
// page reference for citations.
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter creates a new text splitter.
func NewTextSplitter(config SplitterConfig) *TextSplitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 2
	}
	return &TextSplitter{config: config}
}

// Split cuts each page into chunks and numbers them across the document.
func (s *TextSplitter) Split(pages []Page) ([]Chunk, error) {
	var chunks []Chunk
	index := 0

	for _, page := range pages {
		pieces, err := s.splitText(page.Text)
		if err != nil {
			return nil, err
		}
		for _, piece := range pieces {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:  piece,
				Index: index,
				Page:  page.Number,
			})
			index++
			if s.config.MaxChunks > 0 && index >= s.config.MaxChunks {
				return chunks, nil
			}
		}
	}

	return chunks, nil
}

// splitText applies the configured strategy to a single page of text.
func (s *TextSplitter) splitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var pieces []string
	switch s.config.SplitType {
	case ByParagraph:
		pieces = s.splitByParagraph(text)
		pieces = s.mergeSmallChunks(pieces)
		pieces = s.handleLargeChunks(pieces)
	case BySentence:
		pieces = s.splitBySentence(text)
		pieces = s.mergeSmallChunks(pieces)
		pieces = s.handleLargeChunks(pieces)
	case ByLength:
		pieces = s.splitByLength(text)
	default:
		return nil, fmt.Errorf("unknown split type: %s", s.config.SplitType)
	}

	return pieces, nil
}

// splitByParagraph splits text on blank lines.
func (s *TextSplitter) splitByParagraph(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(text, "\n\n")

	var result []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentence splits text on sentence-ending punctuation.
func (s *TextSplitter) splitBySentence(text string) []string {
	delimiters := []rune{'.', '!', '?', '；', '。', '！', '？'}

	var sentences []string
	var current strings.Builder

	for _, char := range text {
		current.WriteRune(char)

		isEnd := false
		for _, d := range delimiters {
			if char == d {
				isEnd = true
				break
			}
		}

		if isEnd {
			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}

	// Trailing text without a delimiter is still a sentence.
	last := strings.TrimSpace(current.String())
	if last != "" {
		sentences = append(sentences, last)
	}

	return sentences
}

// splitByLength cuts fixed-size windows, backing off to whitespace so
// words are not cut mid-way, and stepping by size minus overlap.
func (s *TextSplitter) splitByLength(text string) []string {
	var chunks []string
	step := s.config.ChunkSize - s.config.ChunkOverlap
	if step <= 0 {
		step = s.config.ChunkSize
	}

	for i := 0; i < len(text); i += step {
		end := i + s.config.ChunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			cut := end
			for cut > i && !unicode.IsSpace(rune(text[cut])) {
				cut--
			}
			if cut > i {
				end = cut
			}
		}

		chunk := strings.TrimSpace(text[i:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(text) {
			break
		}
	}

	return chunks
}

// mergeSmallChunks packs adjacent small pieces up to ChunkSize.
func (s *TextSplitter) mergeSmallChunks(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}

	var result []string
	var current strings.Builder

	for _, chunk := range chunks {
		if current.Len() > 0 && current.Len()+len(chunk)+1 > s.config.ChunkSize {
			result = append(result, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(chunk)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// handleLargeChunks re-cuts pieces that exceed ChunkSize.
func (s *TextSplitter) handleLargeChunks(chunks []string) []string {
	var result []string
	for _, chunk := range chunks {
		if len(chunk) > s.config.ChunkSize {
			result = append(result, s.splitByLength(chunk)...)
		} else {
			result = append(result, chunk)
		}
	}
	return result
}
