package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	// DocStatusUploaded means the file is stored and waiting for processing.
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing means the indexing pipeline is running.
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted means the document is fully indexed and answerable.
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed means processing stopped with an error.
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage is the step of the indexing pipeline a document is in.
type ProcessStage string

const (
	StageParsing     ProcessStage = "parsing"
	StageChunking    ProcessStage = "chunking"
	StageVectorizing ProcessStage = "vectorizing"
	StageCompleted   ProcessStage = "completed"
)

// Document stores the metadata of an uploaded file.
type Document struct {
	ID             string         `gorm:"primaryKey"`
	FileName       string         `gorm:"not null"`
	FileType       string         `gorm:"not null"`
	FilePath       string         `gorm:"not null"`
	FileSize       int64          `gorm:"not null"`
	Status         DocumentStatus `gorm:"not null;index"`
	UploadedAt     time.Time      `gorm:"not null;index"`
	ProcessedAt    *time.Time     `gorm:"index"`
	UpdatedAt      time.Time      `gorm:"not null;index"`
	Progress       int            `gorm:"not null;default:0"` // 0-100
	Error          string         `gorm:"type:text"`
	PageCount      int            `gorm:"not null;default:0"`
	SegmentCount   int            `gorm:"not null;default:0"`
	Tags           string         `gorm:"type:varchar(255)"` // comma separated
	Metadata       datatypes.JSON `gorm:"type:json"`
	CurrentStage   ProcessStage   `gorm:"size:20"`
	CurrentTaskID  string         `gorm:"size:50;index"`
	LastTaskStatus string         `gorm:"size:20"`
	RetryCount     int            `gorm:"default:0"`
}

// BeforeCreate fills in timestamps on insert.
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName pins the table name.
func (Document) TableName() string {
	return "documents"
}

// DocumentSegment tracks one text chunk of an indexed document.
// PageNumber is the 1-based page the chunk came from; answers cite it.
type DocumentSegment struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	DocumentID string         `gorm:"not null;index"`
	SegmentID  string         `gorm:"not null;uniqueIndex"`
	Position   int            `gorm:"not null"`
	PageNumber int            `gorm:"not null;default:1"`
	Text       string         `gorm:"type:text;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:json"`
	TaskID     string         `gorm:"size:50;index"`
	VectorID   string         `gorm:"size:50"`
}

// BeforeCreate fills in timestamps on insert.
func (ds *DocumentSegment) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (ds *DocumentSegment) BeforeUpdate(tx *gorm.DB) (err error) {
	ds.UpdatedAt = time.Now()
	return nil
}

// TableName pins the table name.
func (DocumentSegment) TableName() string {
	return "document_segments"
}

// DocumentTask tracks a background processing task for a document.
type DocumentTask struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"`
	DocumentID string         `gorm:"not null;index"`
	TaskID     string         `gorm:"not null;uniqueIndex"`
	TaskType   string         `gorm:"not null;size:50"`
	Status     string         `gorm:"not null;size:20"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
	StartedAt  *time.Time     `gorm:""`
	EndedAt    *time.Time     `gorm:""`
	Error      string         `gorm:"type:text"`
	Result     datatypes.JSON `gorm:"type:json"`
	Retries    int            `gorm:"default:0"`
	Progress   int            `gorm:"default:0"` // 0-100
}

// BeforeCreate fills in timestamps on insert.
func (dt *DocumentTask) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	dt.CreatedAt = now
	dt.UpdatedAt = now
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (dt *DocumentTask) BeforeUpdate(tx *gorm.DB) (err error) {
	dt.UpdatedAt = time.Now()
	return nil
}

// TableName pins the table name.
func (DocumentTask) TableName() string {
	return "document_tasks"
}
