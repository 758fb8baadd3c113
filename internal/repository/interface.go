package repository

import (
	"context"

	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
)

// DocumentRepository stores document metadata and indexed segments.
type DocumentRepository interface {
	// Create inserts a document record.
	Create(doc *models.Document) error

	// Update saves a document record.
	Update(doc *models.Document) error

	// GetByID returns the document with the given id.
	GetByID(id string) (*models.Document, error)

	// List returns documents matching the filters, paginated.
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete removes a document and its segments.
	Delete(id string) error

	// DeleteAll removes every document and segment. Used when a new
	// upload replaces the index.
	DeleteAll() error

	// UpdateStatus sets the processing status of a document.
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress sets the processing progress (0-100).
	UpdateProgress(id string, progress int) error

	// SaveSegment inserts one segment record.
	SaveSegment(segment *models.DocumentSegment) error

	// SaveSegments inserts segment records in batches.
	SaveSegments(segments []*models.DocumentSegment) error

	// GetSegments returns the segments of a document ordered by position.
	GetSegments(docID string) ([]*models.DocumentSegment, error)

	// CountSegments counts the segments of a document.
	CountSegments(docID string) (int, error)

	// DeleteSegments removes the segments of a document.
	DeleteSegments(docID string) error

	// CreateTask enqueues a processing task and records it on the
	// document. Requires a configured task queue.
	CreateTask(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}) (string, error)

	// UpdateTaskStatus updates a task record and mirrors the status
	// onto the owning document.
	UpdateTaskStatus(ctx context.Context, taskID string, status taskqueue.TaskStatus, result interface{}, errorMsg string) error

	// WithContext returns a repository bound to ctx.
	WithContext(ctx context.Context) DocumentRepository
}
