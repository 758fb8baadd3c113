package services

import (
	"context"
	"errors"
	"testing"

	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStatusManager(t *testing.T) *DocumentStatusManager {
	t.Helper()

	setupTestDB(t)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewDocumentStatusManager(repository.NewDocumentRepository(), logger)
}

func TestMarkAsUploaded(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	err := manager.MarkAsUploaded(ctx, "doc-1", "report.pdf", "/data/report.pdf", 2048)
	require.NoError(t, err)

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.FileName)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, int64(2048), doc.FileSize)
	assert.Equal(t, models.DocStatusUploaded, doc.Status)
	assert.Equal(t, 0, doc.Progress)
}

func TestStatusLifecycle(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "report.pdf", "/data/report.pdf", 1024))

	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
	status, err := manager.GetStatus(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, status)

	require.NoError(t, manager.UpdateProgress(ctx, "doc-1", 40))
	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 40, doc.Progress)

	require.NoError(t, manager.MarkAsCompleted(ctx, "doc-1", 5, 12))
	doc, err = manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.Status)
	assert.Equal(t, 5, doc.PageCount)
	assert.Equal(t, 12, doc.SegmentCount)
	assert.Equal(t, 100, doc.Progress)
	assert.Equal(t, models.StageCompleted, doc.CurrentStage)
	assert.NotNil(t, doc.ProcessedAt)
}

func TestMarkAsProcessingInvalidTransition(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "a.pdf", "/data/a.pdf", 10))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
	require.NoError(t, manager.MarkAsCompleted(ctx, "doc-1", 1, 1))

	// A completed document cannot re-enter processing.
	err := manager.MarkAsProcessing(ctx, "doc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidDocumentStatus))
}

func TestMarkAsProcessingAllowsRetryAfterFailure(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "a.pdf", "/data/a.pdf", 10))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
	require.NoError(t, manager.MarkAsFailed(ctx, "doc-1", "embedding service unavailable"))

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.Equal(t, "embedding service unavailable", doc.Error)

	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
	status, err := manager.GetStatus(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, status)
}

func TestUpdateProgressRequiresProcessing(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "a.pdf", "/data/a.pdf", 10))

	err := manager.UpdateProgress(ctx, "doc-1", 50)
	assert.Error(t, err)
}

func TestUpdateStage(t *testing.T) {
	manager := setupStatusManager(t)
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "a.pdf", "/data/a.pdf", 10))
	require.NoError(t, manager.UpdateStage(ctx, "doc-1", models.StageVectorizing))

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageVectorizing, doc.CurrentStage)
}

func TestGetStatusMissingDocument(t *testing.T) {
	manager := setupStatusManager(t)

	_, err := manager.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDocumentNotFound))
}

func TestValidateStateTransition(t *testing.T) {
	manager := setupStatusManager(t)

	cases := []struct {
		from    models.DocumentStatus
		to      models.DocumentStatus
		allowed bool
	}{
		{models.DocStatusUploaded, models.DocStatusProcessing, true},
		{models.DocStatusUploaded, models.DocStatusFailed, true},
		{models.DocStatusProcessing, models.DocStatusCompleted, true},
		{models.DocStatusProcessing, models.DocStatusFailed, true},
		{models.DocStatusFailed, models.DocStatusProcessing, true},
		{models.DocStatusCompleted, models.DocStatusProcessing, false},
		{models.DocStatusCompleted, models.DocStatusUploaded, false},
		{models.DocStatusFailed, models.DocStatusCompleted, false},
	}

	for _, tc := range cases {
		err := manager.ValidateStateTransition(tc.from, tc.to)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s should be allowed", tc.from, tc.to)
		} else {
			assert.Error(t, err, "%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestFileTypeOf(t *testing.T) {
	assert.Equal(t, "pdf", fileTypeOf("Report.PDF"))
	assert.Equal(t, "md", fileTypeOf("notes.md"))
	assert.Equal(t, "", fileTypeOf("noext"))
}
