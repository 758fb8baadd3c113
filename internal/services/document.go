package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/leeszeyu/pdfchat/internal/document"
	"github.com/leeszeyu/pdfchat/internal/embedding"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/leeszeyu/pdfchat/pkg/storage"
	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// DocumentService runs the indexing pipeline: parse, chunk, embed,
// store. The service holds a single active document at a time; a new
// upload replaces the previous index entirely.
type DocumentService struct {
	storage       storage.Storage
	splitter      document.Splitter
	embedder      embedding.Client
	vectorDB      vectordb.Repository
	repo          repository.DocumentRepository
	statusManager *DocumentStatusManager
	taskQueue     taskqueue.Queue
	asyncEnabled  bool
	batcher       embedding.BatchProcessor
	batchSize     int
	timeout       time.Duration
	logger        *logrus.Logger
}

// DocumentOption configures a DocumentService.
type DocumentOption func(*DocumentService)

// NewDocumentService creates a document service.
func NewDocumentService(
	storage storage.Storage,
	splitter document.Splitter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:      storage,
		splitter:     splitter,
		embedder:     embedder,
		vectorDB:     vectorDB,
		batchSize:    16,
		timeout:      time.Minute * 5,
		logger:       logrus.New(),
		asyncEnabled: false,
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithTimeout sets the processing timeout.
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository sets the metadata repository.
func WithDocumentRepository(repo repository.DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithStatusManager sets the status manager.
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue sets the task queue and enables async processing.
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing toggles async processing.
func WithAsyncProcessing(enabled bool) DocumentOption {
	return func(s *DocumentService) {
		s.asyncEnabled = enabled
	}
}

// WithBatchProcessor replaces the embedding batch processor.
func WithBatchProcessor(batcher embedding.BatchProcessor) DocumentOption {
	return func(s *DocumentService) {
		s.batcher = batcher
	}
}

// Init fills in missing dependencies with defaults.
func (s *DocumentService) Init() error {
	if s.repo == nil {
		s.repo = repository.NewDocumentRepository()
	}

	if s.statusManager == nil {
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}

	if s.batcher == nil {
		s.batcher = embedding.NewBatchProcessor(s.embedder, s.batchSize, 4)
	}

	return nil
}

// ResetIndex drops every stored document, its segments and its
// vectors. Called before indexing a new upload so the service only
// ever answers about the latest document.
func (s *DocumentService) ResetIndex(ctx context.Context) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.Info("Resetting document index for new upload")

	if err := s.vectorDB.Reset(); err != nil {
		return fmt.Errorf("failed to reset vector store: %w", err)
	}

	if err := s.repo.DeleteAll(); err != nil {
		return fmt.Errorf("failed to clear document records: %w", err)
	}

	return nil
}

// ProcessDocument indexes a document, synchronously or via the task
// queue depending on configuration.
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string, filePath string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Starting document processing")

	if fileID == "" {
		return errors.New("fileID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	if s.asyncEnabled && s.taskQueue != nil {
		return s.processDocumentAsync(ctx, fileID, filePath)
	}

	return s.processDocumentSync(ctx, fileID, filePath)
}

// processDocumentAsync enqueues an indexing task and returns.
func (s *DocumentService) processDocumentAsync(ctx context.Context, fileID string, filePath string) error {
	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Enqueuing document for async processing")

	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
	}

	fileName := filepath.Base(filePath)
	cfg := document.DefaultSplitterConfig()

	payload := taskqueue.DocumentIndexPayload{
		DocumentID: fileID,
		FilePath:   filePath,
		FileName:   fileName,
		FileType:   fileTypeOf(fileName),
		ChunkSize:  cfg.ChunkSize,
		Overlap:    cfg.ChunkOverlap,
		SplitType:  string(cfg.SplitType),
		Metadata: map[string]string{
			"source": "api",
		},
	}

	taskID, err := s.repo.CreateTask(ctx, taskqueue.TaskDocumentIndex, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to create indexing task: %v", err))
		return fmt.Errorf("failed to create indexing task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Document indexing task created")

	return nil
}

// processDocumentSync runs the pipeline in the current process.
func (s *DocumentService) processDocumentSync(ctx context.Context, fileID string, filePath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
	}

	result, err := s.runPipeline(ctx, fileID, filePath)
	if err != nil {
		s.failDocument(ctx, fileID, err.Error())
		return err
	}

	if err := s.statusManager.MarkAsCompleted(ctx, fileID, result.PageCount, result.ChunkCount); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":       fileID,
		"page_count":    result.PageCount,
		"segment_count": result.ChunkCount,
	}).Info("Document processing completed")

	return nil
}

// IndexDocument runs the pipeline for a queued indexing task. It is
// the worker-side entry point behind taskqueue.TaskDocumentIndex.
func (s *DocumentService) IndexDocument(ctx context.Context, payload taskqueue.DocumentIndexPayload) (*taskqueue.DocumentIndexResult, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	splitter := s.splitter
	if payload.ChunkSize > 0 {
		cfg := document.SplitterConfig{
			SplitType:    document.SplitType(payload.SplitType),
			ChunkSize:    payload.ChunkSize,
			ChunkOverlap: payload.Overlap,
		}
		if cfg.SplitType == "" {
			cfg.SplitType = document.ByParagraph
		}
		splitter = document.NewTextSplitter(cfg)
	}

	result, err := s.runPipelineWith(ctx, payload.DocumentID, payload.FilePath, splitter)
	if err != nil {
		s.failDocument(ctx, payload.DocumentID, err.Error())
		return nil, err
	}

	if err := s.statusManager.MarkAsCompleted(ctx, payload.DocumentID, result.PageCount, result.ChunkCount); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
	}

	return result, nil
}

// CleanupDocument removes a document's derived data for a queued
// cleanup task.
func (s *DocumentService) CleanupDocument(ctx context.Context, payload taskqueue.DocumentCleanupPayload) error {
	if err := s.Init(); err != nil {
		return err
	}

	if err := s.vectorDB.DeleteByFileID(payload.DocumentID); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	return s.repo.DeleteSegments(payload.DocumentID)
}

// runPipeline parses, chunks, embeds and stores one document.
func (s *DocumentService) runPipeline(ctx context.Context, fileID string, filePath string) (*taskqueue.DocumentIndexResult, error) {
	return s.runPipelineWith(ctx, fileID, filePath, s.splitter)
}

func (s *DocumentService) runPipelineWith(ctx context.Context, fileID string, filePath string, splitter document.Splitter) (*taskqueue.DocumentIndexResult, error) {
	s.updateStage(ctx, fileID, models.StageParsing)

	pages, err := s.parseDocument(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	s.updateStage(ctx, fileID, models.StageChunking)

	chunks, err := splitter.Split(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		return nil, document.ErrEmptyDocument
	}

	if err := s.statusManager.UpdateProgress(ctx, fileID, 20); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	s.updateStage(ctx, fileID, models.StageVectorizing)

	if err := s.processBatches(ctx, fileID, filePath, chunks); err != nil {
		return nil, fmt.Errorf("failed to process batches: %w", err)
	}

	return &taskqueue.DocumentIndexResult{
		DocumentID:  fileID,
		PageCount:   len(pages),
		ChunkCount:  len(chunks),
		VectorCount: len(chunks),
		Dimension:   s.vectorDB.GetDimension(),
	}, nil
}

// parseDocument extracts per-page text from the stored file.
func (s *DocumentService) parseDocument(filePath string) ([]document.Page, error) {
	s.logger.WithField("file_path", filePath).Debug("Parsing document")

	fileID := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))

	reader, err := s.storage.Get(fileID)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to get file by id, trying with path")
		reader, err = s.storage.Get(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to get file from storage: %w", err)
		}
	}
	defer reader.Close()

	parser, err := document.ParserFactory(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}

	pages, err := parser.ParseReader(reader, filePath)
	if err != nil {
		return nil, err
	}

	return pages, nil
}

// processBatches embeds chunks through the parallel batch processor,
// then stores vectors and segment records batch by batch.
func (s *DocumentService) processBatches(ctx context.Context, fileID string, filePath string, chunks []document.Chunk) error {
	fileName := filepath.Base(filePath)

	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.batcher.Process(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	totalBatches := (len(chunks) + s.batchSize - 1) / s.batchSize
	processedBatches := 0

	for i := 0; i < len(chunks); i += s.batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		batchVectors := vectors[i:end]

		docs := make([]vectordb.Document, len(batch))
		dbSegments := make([]*models.DocumentSegment, len(batch))

		for j := range batch {
			segmentID := fmt.Sprintf("%s_%d", fileID, batch[j].Index)

			docs[j] = vectordb.Document{
				ID:         segmentID,
				FileID:     fileID,
				FileName:   fileName,
				PageNumber: batch[j].Page,
				Position:   batch[j].Index,
				Text:       batch[j].Text,
				Vector:     batchVectors[j],
				CreatedAt:  time.Now(),
				Metadata: map[string]interface{}{
					"source": filePath,
					"page":   batch[j].Page,
				},
			}

			dbSegments[j] = &models.DocumentSegment{
				DocumentID: fileID,
				SegmentID:  segmentID,
				Position:   batch[j].Index,
				PageNumber: batch[j].Page,
				Text:       batch[j].Text,
			}
		}

		if err := s.vectorDB.AddBatch(docs); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}

		if err := s.repo.SaveSegments(dbSegments); err != nil {
			s.logger.WithError(err).Error("Failed to save segments to database")
		}

		processedBatches++
		// Embedding and storage span the 20 to 90 percent range.
		progress := 20 + int(float64(processedBatches)/float64(totalBatches)*70)
		if err := s.statusManager.UpdateProgress(ctx, fileID, progress); err != nil {
			s.logger.WithError(err).Warn("Failed to update document progress")
		}
	}

	return nil
}

// DeleteDocument removes a document, its vectors, its file and its
// queued tasks.
func (s *DocumentService) DeleteDocument(ctx context.Context, fileID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithField("file_id", fileID).Info("Deleting document")

	if err := s.vectorDB.DeleteByFileID(fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document vectors")
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	if err := s.storage.Delete(fileID); err != nil {
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	if err := s.statusManager.DeleteDocument(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document record")
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
		if err == nil {
			for _, task := range tasks {
				if err := s.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete document task")
				}
			}
		}
	}

	s.logger.WithField("file_id", fileID).Info("Document deleted")
	return nil
}

// ActiveDocument returns the currently indexed document, or
// models.ErrDocumentNotFound when nothing has been uploaded yet.
// The service keeps at most one completed document at a time.
func (s *DocumentService) ActiveDocument(ctx context.Context) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	docs, _, err := s.repo.List(0, 1, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, models.ErrDocumentNotFound
	}

	return docs[0], nil
}

// RegisterUpload records a freshly stored file so processing can be
// tracked against it.
func (s *DocumentService) RegisterUpload(ctx context.Context, fileID, fileName, filePath string, fileSize int64) error {
	if err := s.Init(); err != nil {
		return err
	}

	return s.statusManager.MarkAsUploaded(ctx, fileID, fileName, filePath, fileSize)
}

// GetDocument returns the stored document record.
func (s *DocumentService) GetDocument(ctx context.Context, fileID string) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	return s.statusManager.GetDocument(ctx, fileID)
}

// GetDocumentInfo returns a document's metadata and task state.
func (s *DocumentService) GetDocumentInfo(ctx context.Context, fileID string) (map[string]interface{}, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	info := map[string]interface{}{
		"file_id":    doc.ID,
		"filename":   doc.FileName,
		"status":     doc.Status,
		"created_at": doc.UploadedAt.Format(time.RFC3339),
		"updated_at": doc.UpdatedAt.Format(time.RFC3339),
		"size":       doc.FileSize,
		"progress":   doc.Progress,
	}

	if doc.PageCount > 0 {
		info["page_count"] = doc.PageCount
	}
	if doc.SegmentCount > 0 {
		info["segment_count"] = doc.SegmentCount
	}
	if doc.Error != "" {
		info["error"] = doc.Error
	}
	if doc.ProcessedAt != nil {
		info["processed_at"] = doc.ProcessedAt.Format(time.RFC3339)
	}
	if doc.Tags != "" {
		info["tags"] = doc.Tags
	}

	if s.asyncEnabled && s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
		if err == nil && len(tasks) > 0 {
			latestTask := tasks[0]
			for _, task := range tasks {
				if task.UpdatedAt.After(latestTask.UpdatedAt) {
					latestTask = task
				}
			}

			info["task_id"] = latestTask.ID
			info["task_status"] = latestTask.Status
			if latestTask.Error != "" {
				info["task_error"] = latestTask.Error
			}
		}
	}

	return info, nil
}

// GetDocumentStatus returns the processing status of a document.
func (s *DocumentService) GetDocumentStatus(ctx context.Context, fileID string) (models.DocumentStatus, error) {
	if err := s.Init(); err != nil {
		return "", err
	}

	return s.statusManager.GetStatus(ctx, fileID)
}

// GetDocumentTasks returns the queued tasks of a document.
func (s *DocumentService) GetDocumentTasks(ctx context.Context, fileID string) ([]*taskqueue.Task, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, errors.New("async processing not enabled")
	}

	return s.taskQueue.GetTasksByDocument(ctx, fileID)
}

// WaitForDocumentProcessing blocks until a document finishes
// processing or the timeout elapses.
func (s *DocumentService) WaitForDocumentProcessing(ctx context.Context, fileID string, timeout time.Duration) error {
	if err := s.Init(); err != nil {
		return err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		status, err := s.statusManager.GetStatus(ctx, fileID)
		if err != nil {
			return err
		}
		if status == models.DocStatusFailed {
			return errors.New("document processing failed")
		}
		if status != models.DocStatusCompleted {
			return errors.New("document not processed")
		}
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document tasks: %w", err)
	}

	var latestTask *taskqueue.Task
	for _, task := range tasks {
		if task.Type != taskqueue.TaskDocumentIndex {
			continue
		}
		if latestTask == nil || task.CreatedAt.After(latestTask.CreatedAt) {
			latestTask = task
		}
	}

	if latestTask == nil {
		return fmt.Errorf("no indexing task found for document %s", fileID)
	}

	if _, err := s.taskQueue.WaitForTask(ctx, latestTask.ID, timeout); err != nil {
		return fmt.Errorf("failed to wait for document processing: %w", err)
	}

	status, err := s.statusManager.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}

	if status == models.DocStatusFailed {
		return errors.New("document processing failed")
	}
	if status != models.DocStatusCompleted {
		return errors.New("document processing incomplete")
	}

	return nil
}

// CountDocumentSegments counts the indexed segments of a document.
func (s *DocumentService) CountDocumentSegments(ctx context.Context, fileID string) (int, error) {
	if err := s.Init(); err != nil {
		return 0, err
	}

	return s.repo.CountSegments(fileID)
}

// ListDocuments returns documents matching the filters, paginated.
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// UpdateDocumentTags replaces a document's tags.
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, fileID string, tags string) error {
	if err := s.Init(); err != nil {
		return err
	}

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	doc.Tags = tags
	return s.repo.Update(doc)
}

// failDocument marks a document as failed, logging any error.
func (s *DocumentService) failDocument(ctx context.Context, fileID string, errorMsg string) {
	if s.statusManager == nil {
		s.logger.Error("Cannot mark document as failed: status manager not initialized")
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, fileID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"error":   err,
		}).Error("Failed to mark document as failed")
	}
}

// updateStage records the current pipeline stage, logging any error.
func (s *DocumentService) updateStage(ctx context.Context, fileID string, stage models.ProcessStage) {
	if err := s.statusManager.UpdateStage(ctx, fileID, stage); err != nil {
		s.logger.WithError(err).Debug("Failed to update document stage")
	}
}

// GetStatusManager returns the status manager.
func (s *DocumentService) GetStatusManager() *DocumentStatusManager {
	return s.statusManager
}

// GetTaskQueue returns the task queue.
func (s *DocumentService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
