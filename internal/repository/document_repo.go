package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/leeszeyu/pdfchat/internal/database"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
)

// docRepository is the gorm-backed DocumentRepository.
type docRepository struct {
	db        *gorm.DB
	taskQueue taskqueue.Queue
	ctx       context.Context
}

// NewDocumentRepository creates a repository on the global database.
func NewDocumentRepository() DocumentRepository {
	return &docRepository{
		db:  database.MustDB(),
		ctx: context.Background(),
	}
}

// NewDocumentRepositoryWithDB creates a repository on the given connection.
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db:  db,
		ctx: context.Background(),
	}
}

// NewDocumentRepositoryWithQueue creates a repository that can also track
// background tasks.
func NewDocumentRepositoryWithQueue(db *gorm.DB, queue taskqueue.Queue) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db:        db,
		taskQueue: queue,
		ctx:       context.Background(),
	}
}

// Create inserts a document record.
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Create(doc).Error
}

// Update saves a document record.
func (r *docRepository) Update(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Save(doc).Error
}

// GetByID returns the document with the given id.
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List returns documents matching the filters, paginated.
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	var docs []*models.Document
	var total int64

	query := r.db.Model(&models.Document{})

	if filters != nil {
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.DocumentStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			default:
				statusStr := fmt.Sprintf("%v", status)
				if statusStr != "" {
					query = query.Where("status = ?", statusStr)
				}
			}
		}

		if tags, ok := filters["tags"].(string); ok && tags != "" {
			query = query.Where("tags LIKE ?", "%"+tags+"%")
		}

		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("uploaded_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("uploaded_at <= ?", endTime)
		}

		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error

	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// Delete removes a document, its segments and any tracked tasks.
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentSegment{}).Error; err != nil {
			return err
		}

		if err := tx.Where("id = ?", id).Delete(&models.Document{}).Error; err != nil {
			return err
		}

		if r.taskQueue != nil {
			ctx := r.getContext()
			tasks, err := r.taskQueue.GetTasksByDocument(ctx, id)
			if err == nil && len(tasks) > 0 {
				for _, task := range tasks {
					// The task may be gone already.
					_ = r.taskQueue.DeleteTask(ctx, task.ID)
				}
			}
		}

		return nil
	})
}

// DeleteAll removes every document record and segment.
func (r *docRepository) DeleteAll() error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.DocumentSegment{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.Document{}).Error
	})
}

// UpdateStatus sets the processing status of a document.
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	if status == models.DocStatusCompleted || status == models.DocStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateProgress sets the processing progress, clamped to 0-100.
func (r *docRepository) UpdateProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

// SaveSegment inserts one segment record.
func (r *docRepository) SaveSegment(segment *models.DocumentSegment) error {
	return r.db.Create(segment).Error
}

// SaveSegments inserts segment records in batches.
func (r *docRepository) SaveSegments(segments []*models.DocumentSegment) error {
	if len(segments) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(segments, 100).Error
	})
}

// GetSegments returns the segments of a document ordered by position.
func (r *docRepository) GetSegments(docID string) ([]*models.DocumentSegment, error) {
	var segments []*models.DocumentSegment
	err := r.db.Where("document_id = ?", docID).
		Order("position ASC").
		Find(&segments).Error
	return segments, err
}

// CountSegments counts the segments of a document.
func (r *docRepository) CountSegments(docID string) (int, error) {
	var count int64
	err := r.db.Model(&models.DocumentSegment{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteSegments removes the segments of a document.
func (r *docRepository) DeleteSegments(docID string) error {
	return r.db.Where("document_id = ?", docID).
		Delete(&models.DocumentSegment{}).Error
}

// WithContext returns a repository bound to ctx.
func (r *docRepository) WithContext(ctx context.Context) DocumentRepository {
	return &docRepository{
		db:        r.db.WithContext(ctx),
		taskQueue: r.taskQueue,
		ctx:       ctx,
	}
}

func (r *docRepository) getContext() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// CreateTask enqueues a processing task and marks the document as
// processing.
func (r *docRepository) CreateTask(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}) (string, error) {
	if r.taskQueue == nil {
		return "", errors.New("task queue not initialized")
	}

	_, err := r.GetByID(documentID)
	if err != nil {
		return "", err
	}

	taskID, err := r.taskQueue.Enqueue(ctx, taskType, documentID, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := r.UpdateStatus(documentID, models.DocStatusProcessing, ""); err != nil {
		// The task is already queued; surface the status failure later.
		return taskID, nil
	}

	return taskID, nil
}

// UpdateTaskStatus updates a task and mirrors the state onto the
// document record.
func (r *docRepository) UpdateTaskStatus(ctx context.Context, taskID string, status taskqueue.TaskStatus, result interface{}, errorMsg string) error {
	if r.taskQueue == nil {
		return errors.New("task queue not initialized")
	}

	task, err := r.taskQueue.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := r.taskQueue.UpdateTaskStatus(ctx, taskID, status, result, errorMsg); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if task.DocumentID != "" {
		var docStatus models.DocumentStatus
		var docError string

		switch status {
		case taskqueue.StatusCompleted:
			docStatus = models.DocStatusCompleted
		case taskqueue.StatusFailed:
			docStatus = models.DocStatusFailed
			docError = errorMsg
		case taskqueue.StatusProcessing:
			docStatus = models.DocStatusProcessing
		default:
			return nil
		}

		if err := r.UpdateStatus(task.DocumentID, docStatus, docError); err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}
	}

	return nil
}
