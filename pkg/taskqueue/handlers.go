package taskqueue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// IndexFunc runs the indexing pipeline for one document. It returns
// the pipeline outcome or an error.
type IndexFunc func(ctx context.Context, payload DocumentIndexPayload) (*DocumentIndexResult, error)

// CleanupFunc removes a document's derived data.
type CleanupFunc func(ctx context.Context, payload DocumentCleanupPayload) error

// DocumentHandler executes document tasks by delegating to the
// service-layer pipeline functions it was built with.
type DocumentHandler struct {
	queue   Queue
	index   IndexFunc
	cleanup CleanupFunc
	logger  *logrus.Logger
}

// NewDocumentHandler creates a handler for document tasks.
func NewDocumentHandler(queue Queue, index IndexFunc, cleanup CleanupFunc, logger *logrus.Logger) *DocumentHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &DocumentHandler{
		queue:   queue,
		index:   index,
		cleanup: cleanup,
		logger:  logger,
	}
}

// GetTaskTypes returns the task types this handler accepts.
func (h *DocumentHandler) GetTaskTypes() []TaskType {
	types := []TaskType{}
	if h.index != nil {
		types = append(types, TaskDocumentIndex)
	}
	if h.cleanup != nil {
		types = append(types, TaskDocumentCleanup)
	}
	return types
}

// ProcessTask runs one task and stores its result on the task record.
func (h *DocumentHandler) ProcessTask(ctx context.Context, task *Task) error {
	switch task.Type {
	case TaskDocumentIndex:
		return h.processIndex(ctx, task)
	case TaskDocumentCleanup:
		return h.processCleanup(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

func (h *DocumentHandler) processIndex(ctx context.Context, task *Task) error {
	if h.index == nil {
		return fmt.Errorf("no index function configured")
	}

	var payload DocumentIndexPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
		"file_name":   payload.FileName,
	}).Info("Running document index task")

	result, err := h.index(ctx, payload)
	if err != nil {
		h.logger.WithError(err).WithField("document_id", task.DocumentID).Error("Document index task failed")
		return err
	}

	if err := h.queue.UpdateTaskStatus(ctx, task.ID, StatusProcessing, result, ""); err != nil {
		h.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to store index result")
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":      task.ID,
		"document_id":  task.DocumentID,
		"page_count":   result.PageCount,
		"chunk_count":  result.ChunkCount,
		"vector_count": result.VectorCount,
	}).Info("Document index task completed")

	return nil
}

func (h *DocumentHandler) processCleanup(ctx context.Context, task *Task) error {
	if h.cleanup == nil {
		return fmt.Errorf("no cleanup function configured")
	}

	var payload DocumentCleanupPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if payload.DocumentID == "" {
		payload.DocumentID = task.DocumentID
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": payload.DocumentID,
	}).Info("Running document cleanup task")

	return h.cleanup(ctx, payload)
}
