package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType identifies what a queued task does.
type TaskType string

const (
	// TaskDocumentIndex runs the full indexing pipeline for one
	// document: parse, chunk, embed, store.
	TaskDocumentIndex TaskType = "document_index"
	// TaskDocumentCleanup removes a document's vectors and segments.
	TaskDocumentCleanup TaskType = "document_cleanup"
)

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Task is the stored representation of a queued unit of work.
type Task struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	DocumentID  string          `json:"document_id"`
	Status      TaskStatus      `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result"`
	Error       string          `json:"error"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"max_retries"`
}

// DocumentIndexPayload is the input of a document_index task.
type DocumentIndexPayload struct {
	DocumentID string            `json:"document_id"`
	FilePath   string            `json:"file_path"`
	FileName   string            `json:"file_name"`
	FileType   string            `json:"file_type"`
	ChunkSize  int               `json:"chunk_size"`
	Overlap    int               `json:"overlap"`
	SplitType  string            `json:"split_type"`
	Model      string            `json:"model"`
	Metadata   map[string]string `json:"metadata"`
}

// DocumentIndexResult is the output of a document_index task.
type DocumentIndexResult struct {
	DocumentID  string `json:"document_id"`
	PageCount   int    `json:"page_count"`
	ChunkCount  int    `json:"chunk_count"`
	VectorCount int    `json:"vector_count"`
	Dimension   int    `json:"dimension"`
	Error       string `json:"error,omitempty"`
}

// DocumentCleanupPayload is the input of a document_cleanup task.
type DocumentCleanupPayload struct {
	DocumentID string `json:"document_id"`
}
