package model

import "mime/multipart"

// PaginationRequest carries common list pagination parameters.
type PaginationRequest struct {
	Page     int `form:"page,default=1" json:"page"`
	PageSize int `form:"page_size,default=10" json:"page_size"`
}

// GetPage returns the requested page, never below 1.
func (r *PaginationRequest) GetPage() int {
	if r.Page < 1 {
		return 1
	}
	return r.Page
}

// GetPageSize returns the requested page size, clamped to [1, 100].
func (r *PaginationRequest) GetPageSize() int {
	if r.PageSize < 1 {
		return 10
	}
	if r.PageSize > 100 {
		return 100
	}
	return r.PageSize
}

// DocumentUploadRequest is the multipart upload form.
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`
	Tags string                `form:"tags"`
}

// DocumentStatusRequest identifies a document by path parameter.
type DocumentStatusRequest struct {
	ID string `uri:"id" binding:"required"`
}

// DocumentListRequest filters the document list.
type DocumentListRequest struct {
	PaginationRequest
	Status string `form:"status"`
	Tags   string `form:"tags"`
}

// DocumentDeleteRequest identifies the document to delete.
type DocumentDeleteRequest struct {
	ID string `uri:"id" binding:"required"`
}

// QARequest is a question about the indexed document. When SessionID
// is set the answer takes the conversation history into account and
// the exchange is appended to that session.
type QARequest struct {
	Question  string                 `json:"question" binding:"required"`
	SessionID string                 `json:"session_id,omitempty"`
	FileID    string                 `json:"file_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
