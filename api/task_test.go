package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/leeszeyu/pdfchat/api/handler"
	"github.com/leeszeyu/pdfchat/api/model"
	"github.com/leeszeyu/pdfchat/internal/cache"
	"github.com/leeszeyu/pdfchat/internal/document"
	"github.com/leeszeyu/pdfchat/internal/llm"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/leeszeyu/pdfchat/internal/services"
	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/leeszeyu/pdfchat/pkg/storage"
	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asyncEnv runs the stack with a redis backed task queue, uploads
// enqueue indexing tasks instead of processing inline.
type asyncEnv struct {
	Router *gin.Engine
	Queue  taskqueue.Queue
}

func setupAsyncEnv(t *testing.T) *asyncEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	db := setupAPIDB(t)

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

	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:      "memory",
		Dimension: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vectorDB.Close() })

	cacheService, err := cache.NewCache(cache.Config{
		Type:            "memory",
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	embedder := &testEmbedder{dimension: 4}
	client := &scriptedLLM{}

	documentService := services.NewDocumentService(
		fileStorage,
		document.NewTextSplitter(document.DefaultSplitterConfig()),
		embedder,
		vectorDB,
		services.WithDocumentRepository(repo),
		services.WithTaskQueue(queue),
		services.WithLogger(logger),
	)

	qaService := services.NewQAService(
		embedder,
		vectorDB,
		client,
		llm.NewRAG(client),
		cacheService,
		services.WithQALogger(logger),
	)

	chatService := services.NewChatService(
		repository.NewChatRepository(),
		services.WithChatLogger(logger),
	)

	docHandler := handler.NewDocumentHandler(fileStorage, documentService, qaService)
	qaHandler := handler.NewQAHandler(qaService, chatService, documentService)
	chatHandler := handler.NewChatHandler(chatService, qaService, documentService)
	taskHandler := handler.NewTaskHandler(queue)

	router := SetupRouter(docHandler, qaHandler, chatHandler, taskHandler)

	return &asyncEnv{
		Router: router,
		Queue:  queue,
	}
}

// uploadAsync posts a file and waits for its indexing task to appear.
func uploadAsync(t *testing.T, env *asyncEnv, filename, content string) string {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "upload response: %s", w.Body.String())

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	fileID := resp.Data.(map[string]interface{})["file_id"].(string)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tasks, err := env.Queue.GetTasksByDocument(context.Background(), fileID)
		require.NoError(t, err)
		if len(tasks) > 0 {
			return fileID
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for indexing task")
	return ""
}

func TestUploadEnqueuesIndexTask(t *testing.T) {
	env := setupAsyncEnv(t)

	fileID := uploadAsync(t, env, "queued.txt", "Content processed through the queue.")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+fileID+"/tasks", nil)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, fileID, data["document_id"])

	tasks := data["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	task := tasks[0].(map[string]interface{})
	assert.Equal(t, string(taskqueue.TaskDocumentIndex), task["type"])
}

func TestGetTaskStatus(t *testing.T) {
	env := setupAsyncEnv(t)

	fileID := uploadAsync(t, env, "status.txt", "Queued content.")

	tasks, err := env.Queue.GetTasksByDocument(context.Background(), fileID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+tasks[0].ID, nil)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, tasks[0].ID, data["id"])
	assert.Equal(t, fileID, data["document_id"])
	assert.Equal(t, string(taskqueue.TaskDocumentIndex), data["type"])
}

func TestGetTaskStatusNotFound(t *testing.T) {
	env := setupAsyncEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
