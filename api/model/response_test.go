package model

import (
	"strings"
	"testing"

	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceSnippetShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short passage", SourceSnippet("short passage"))
}

func TestSourceSnippetTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", sourceSnippetLen+50)

	got := SourceSnippet(long)
	assert.Len(t, []rune(got), sourceSnippetLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSourceSnippetRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", sourceSnippetLen+10)

	got := SourceSnippet(long)
	require.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("é", sourceSnippetLen), strings.TrimSuffix(got, "..."))
}

func TestConvertToSourceInfoCapsText(t *testing.T) {
	docs := []vectordb.Document{
		{
			FileID:     "f1",
			FileName:   "report.pdf",
			PageNumber: 3,
			Position:   7,
			Text:       strings.Repeat("x", sourceSnippetLen*2),
		},
	}

	sources := ConvertToSourceInfo(docs)
	require.Len(t, sources, 1)
	assert.Equal(t, "f1", sources[0].FileID)
	assert.Equal(t, 3, sources[0].Page)
	assert.Len(t, []rune(sources[0].Text), sourceSnippetLen+3)
}

func TestConvertToSourceInfoEmptyInput(t *testing.T) {
	sources := ConvertToSourceInfo(nil)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)
}
