package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leeszeyu/pdfchat/internal/document"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/leeszeyu/pdfchat/pkg/storage"
	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type asyncTestEnv struct {
	service       *DocumentService
	storage       storage.Storage
	queue         taskqueue.Queue
	repo          repository.DocumentRepository
	statusManager *DocumentStatusManager
}

func setupAsyncTestEnv(t *testing.T) *asyncTestEnv {
	t.Helper()

	db := setupTestDB(t)

	mr := miniredis.RunT(t)
	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{
		RedisAddr:   mr.Addr(),
		Concurrency: 1,
		RetryLimit:  1,
		RetryDelay:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	repo := repository.NewDocumentRepositoryWithQueue(db, queue)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	statusManager := NewDocumentStatusManager(repo, logger)

	storageService, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	splitterConfig := document.DefaultSplitterConfig()
	splitterConfig.ChunkSize = 100
	textSplitter := document.NewTextSplitter(splitterConfig)

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:      "memory",
		Dimension: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vectorDB.Close() })

	service := NewDocumentService(
		storageService,
		textSplitter,
		&testEmbeddingClient{dimension: 4},
		vectorDB,
		WithDocumentRepository(repo),
		WithStatusManager(statusManager),
		WithTaskQueue(queue),
		WithLogger(logger),
	)

	return &asyncTestEnv{
		service:       service,
		storage:       storageService,
		queue:         queue,
		repo:          repo,
		statusManager: statusManager,
	}
}

func uploadAsyncTestFile(t *testing.T, env *asyncTestEnv, name, content string) storage.FileInfo {
	t.Helper()

	docEnv := &documentTestEnv{storage: env.storage, statusManager: env.statusManager}
	return uploadTestFile(t, docEnv, name, content)
}

func TestProcessDocumentAsyncEnqueues(t *testing.T) {
	env := setupAsyncTestEnv(t)
	ctx := context.Background()

	info := uploadAsyncTestFile(t, env, "async.txt", "Content processed through the queue.")

	err := env.service.ProcessDocument(ctx, info.ID, info.Path)
	require.NoError(t, err)

	// The document is marked processing while the task waits.
	status, err := env.service.GetDocumentStatus(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, status)

	tasks, err := env.service.GetDocumentTasks(ctx, info.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskqueue.TaskDocumentIndex, tasks[0].Type)
	assert.Equal(t, taskqueue.StatusPending, tasks[0].Status)

	var payload taskqueue.DocumentIndexPayload
	require.NoError(t, taskqueue.UnmarshalPayload(tasks[0].Payload, &payload))
	assert.Equal(t, info.ID, payload.DocumentID)
	assert.Equal(t, 1000, payload.ChunkSize)
	assert.Equal(t, 200, payload.Overlap)
}

func TestProcessDocumentAsyncWithOptions(t *testing.T) {
	env := setupAsyncTestEnv(t)
	ctx := context.Background()

	info := uploadAsyncTestFile(t, env, "opts.txt", "Content.")

	taskID, err := env.service.ProcessDocumentAsync(ctx, info.ID, info.Path,
		WithChunkSize(500),
		WithChunkOverlap(50),
		WithSplitType("sentence"),
		WithMetadata(map[string]string{"source": "test"}),
	)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := env.queue.GetTask(ctx, taskID)
	require.NoError(t, err)

	var payload taskqueue.DocumentIndexPayload
	require.NoError(t, taskqueue.UnmarshalPayload(task.Payload, &payload))
	assert.Equal(t, 500, payload.ChunkSize)
	assert.Equal(t, 50, payload.Overlap)
	assert.Equal(t, "sentence", payload.SplitType)
	assert.Equal(t, "test", payload.Metadata["source"])
}

// TestTaskHandlerRunsPipeline drives the queued task through the
// handler the worker would invoke.
func TestTaskHandlerRunsPipeline(t *testing.T) {
	env := setupAsyncTestEnv(t)
	ctx := context.Background()

	content := "The opening paragraph introduces the handler driven indexing flow in detail.\n\n" +
		"The closing paragraph confirms that vectors end up stored and counted correctly."
	info := uploadAsyncTestFile(t, env, "handled.txt", content)

	taskID, err := env.service.ProcessDocumentAsync(ctx, info.ID, info.Path, WithChunkSize(100))
	require.NoError(t, err)

	task, err := env.queue.GetTask(ctx, taskID)
	require.NoError(t, err)

	handler := env.service.NewTaskHandler(nil)
	require.NoError(t, handler.ProcessTask(ctx, task))

	// The pipeline completed and stored its result on the task.
	require.NoError(t, env.queue.UpdateTaskStatus(ctx, taskID, taskqueue.StatusCompleted, nil, ""))

	status, err := env.service.GetDocumentStatus(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, status)

	doc, err := env.repo.GetByID(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount)
	assert.Equal(t, 2, doc.SegmentCount)

	result, err := env.service.WaitForTaskResult(ctx, taskID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunkCount)
}

func TestTaskHandlerCleanup(t *testing.T) {
	env := setupAsyncTestEnv(t)
	ctx := context.Background()

	info := uploadAsyncTestFile(t, env, "cleanup.txt", "Indexed then cleaned up.")

	// Index synchronously first.
	env.service.EnableAsyncProcessing(nil)
	require.NoError(t, env.service.ProcessDocument(ctx, info.ID, info.Path))
	env.service.EnableAsyncProcessing(env.queue)

	segCount, err := env.service.CountDocumentSegments(ctx, info.ID)
	require.NoError(t, err)
	require.Greater(t, segCount, 0)

	handler := env.service.NewTaskHandler(nil)
	payload, err := taskqueue.MarshalPayload(taskqueue.DocumentCleanupPayload{DocumentID: info.ID})
	require.NoError(t, err)

	err = handler.ProcessTask(ctx, &taskqueue.Task{
		ID:      "cleanup-task",
		Type:    taskqueue.TaskDocumentCleanup,
		Payload: payload,
	})
	require.NoError(t, err)

	segCount, err = env.service.CountDocumentSegments(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, segCount)
}

func TestWaitForDocumentProcessing(t *testing.T) {
	env := setupAsyncTestEnv(t)
	ctx := context.Background()

	info := uploadAsyncTestFile(t, env, "waited.txt", "Content to wait for.")

	taskID, err := env.service.ProcessDocumentAsync(ctx, info.ID, info.Path)
	require.NoError(t, err)

	// Complete the task through the repository so the document record
	// mirrors it.
	require.NoError(t, env.repo.UpdateTaskStatus(ctx, taskID, taskqueue.StatusCompleted, nil, ""))

	err = env.service.WaitForDocumentProcessing(ctx, info.ID, 2*time.Second)
	assert.NoError(t, err)
}
