package model

import (
	"time"

	"github.com/leeszeyu/pdfchat/internal/vectordb"
)

// Response is the envelope every endpoint returns. Code 0 means
// success, anything else mirrors the HTTP status code.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// NewSuccessResponse wraps data in a success envelope.
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse acknowledges an accepted upload.
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`
	FileName string `json:"filename"`
	Status   string `json:"status"`
}

// DocumentStatusResponse reports processing progress for a document.
type DocumentStatusResponse struct {
	FileID    string `json:"file_id"`
	Status    string `json:"status"`
	FileName  string `json:"filename"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
	Pages     int    `json:"pages,omitempty"`
	Segments  int    `json:"segments,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// DocumentInfo is one entry in the document list.
type DocumentInfo struct {
	FileID     string    `json:"file_id"`
	FileName   string    `json:"filename"`
	Status     string    `json:"status"`
	Tags       string    `json:"tags,omitempty"`
	UploadTime time.Time `json:"upload_time"`
	Pages      int       `json:"pages"`
	Segments   int       `json:"segments"`
}

// DocumentListResponse lists documents with pagination info.
type DocumentListResponse struct {
	Total     int64          `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	Documents []DocumentInfo `json:"documents"`
}

// DocumentDeleteResponse acknowledges a delete.
type DocumentDeleteResponse struct {
	Success bool   `json:"success"`
	FileID  string `json:"file_id"`
}

// QASourceInfo is a cited passage backing an answer.
type QASourceInfo struct {
	Text     string  `json:"text"`
	FileID   string  `json:"file_id"`
	FileName string  `json:"filename"`
	Page     int     `json:"page"`
	Position int     `json:"position"`
	Score    float32 `json:"score,omitempty"`
}

// QAResponse carries an answer with its citations.
type QAResponse struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	SessionID string         `json:"session_id,omitempty"`
	Sources   []QASourceInfo `json:"sources"`
}

// sourceSnippetLen caps the cited text in responses; the full chunk
// stays in the index.
const sourceSnippetLen = 300

// ConvertToSourceInfo maps retrieved chunks to citation entries.
func ConvertToSourceInfo(docs []vectordb.Document) []QASourceInfo {
	sources := make([]QASourceInfo, len(docs))
	for i, doc := range docs {
		sources[i] = QASourceInfo{
			Text:     SourceSnippet(doc.Text),
			FileID:   doc.FileID,
			FileName: doc.FileName,
			Page:     doc.PageNumber,
			Position: doc.Position,
		}
	}
	return sources
}

// SourceSnippet shortens a chunk to the snippet length on a rune
// boundary.
func SourceSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= sourceSnippetLen {
		return text
	}
	return string(runes[:sourceSnippetLen]) + "..."
}
