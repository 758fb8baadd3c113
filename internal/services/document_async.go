package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// AsyncDocumentOptions configures a queued indexing task.
type AsyncDocumentOptions struct {
	ChunkSize      int
	ChunkOverlap   int
	SplitType      string
	EmbeddingModel string
	Metadata       map[string]string
}

// AsyncOption mutates AsyncDocumentOptions.
type AsyncOption func(*AsyncDocumentOptions)

// WithChunkSize sets the chunk size for the queued task.
func WithChunkSize(size int) AsyncOption {
	return func(o *AsyncDocumentOptions) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithChunkOverlap sets the chunk overlap for the queued task.
func WithChunkOverlap(overlap int) AsyncOption {
	return func(o *AsyncDocumentOptions) {
		if overlap >= 0 {
			o.ChunkOverlap = overlap
		}
	}
}

// WithSplitType sets the splitting strategy for the queued task.
func WithSplitType(splitType string) AsyncOption {
	return func(o *AsyncDocumentOptions) {
		if splitType != "" {
			o.SplitType = splitType
		}
	}
}

// WithEmbeddingModel sets the embedding model for the queued task.
func WithEmbeddingModel(model string) AsyncOption {
	return func(o *AsyncDocumentOptions) {
		if model != "" {
			o.EmbeddingModel = model
		}
	}
}

// WithMetadata attaches metadata to the queued task.
func WithMetadata(metadata map[string]string) AsyncOption {
	return func(o *AsyncDocumentOptions) {
		o.Metadata = metadata
	}
}

// DefaultAsyncOptions returns the default task options.
func DefaultAsyncOptions() *AsyncDocumentOptions {
	return &AsyncDocumentOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		SplitType:    "paragraph",
	}
}

// EnableAsyncProcessing attaches a task queue to the service and turns
// on queued indexing.
func (s *DocumentService) EnableAsyncProcessing(queue taskqueue.Queue) {
	s.taskQueue = queue
	s.asyncEnabled = queue != nil
}

// ProcessDocumentAsync enqueues an indexing task with explicit
// options and returns the task id.
func (s *DocumentService) ProcessDocumentAsync(ctx context.Context, fileID string, filePath string, opts ...AsyncOption) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}

	if s.taskQueue == nil {
		return "", fmt.Errorf("task queue not configured")
	}

	options := DefaultAsyncOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
	}

	fileName := filepath.Base(filePath)
	payload := taskqueue.DocumentIndexPayload{
		DocumentID: fileID,
		FilePath:   filePath,
		FileName:   fileName,
		FileType:   fileTypeOf(fileName),
		ChunkSize:  options.ChunkSize,
		Overlap:    options.ChunkOverlap,
		SplitType:  options.SplitType,
		Model:      options.EmbeddingModel,
		Metadata:   options.Metadata,
	}

	taskID, err := s.repo.CreateTask(ctx, taskqueue.TaskDocumentIndex, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to create indexing task: %v", err))
		return "", fmt.Errorf("failed to create indexing task: %w", err)
	}

	return taskID, nil
}

// NewTaskHandler builds the queue handler that runs this service's
// pipeline for indexing and cleanup tasks.
func (s *DocumentService) NewTaskHandler(logger *logrus.Logger) *taskqueue.DocumentHandler {
	return taskqueue.NewDocumentHandler(
		s.taskQueue,
		func(ctx context.Context, payload taskqueue.DocumentIndexPayload) (*taskqueue.DocumentIndexResult, error) {
			return s.IndexDocument(ctx, payload)
		},
		func(ctx context.Context, payload taskqueue.DocumentCleanupPayload) error {
			return s.CleanupDocument(ctx, payload)
		},
		logger,
	)
}

// RegisterWorker attaches this service's task handler to a worker.
func (s *DocumentService) RegisterWorker(worker taskqueue.Worker, logger *logrus.Logger) {
	handler := s.NewTaskHandler(logger)
	for _, taskType := range handler.GetTaskTypes() {
		worker.RegisterHandler(taskType, handler)
	}
}

// WaitForTaskResult blocks until a task finishes and returns its
// decoded indexing result.
func (s *DocumentService) WaitForTaskResult(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.DocumentIndexResult, error) {
	if s.taskQueue == nil {
		return nil, fmt.Errorf("task queue not configured")
	}

	task, err := s.taskQueue.WaitForTask(ctx, taskID, timeout)
	if err != nil {
		return nil, err
	}

	if task.Status == taskqueue.StatusFailed {
		return nil, fmt.Errorf("task failed: %s", task.Error)
	}

	var result taskqueue.DocumentIndexResult
	if err := taskqueue.UnmarshalPayload(task.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result: %w", err)
	}

	return &result, nil
}
