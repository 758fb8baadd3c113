package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubQueue records UpdateTaskStatus calls for handler tests.
type stubQueue struct {
	updates []TaskStatus
	results []interface{}
}

func (q *stubQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	return "stub-task", nil
}

func (q *stubQueue) EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error) {
	return "stub-task", nil
}

func (q *stubQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	return "stub-task", nil
}

func (q *stubQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return nil, ErrTaskNotFound
}

func (q *stubQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	return nil, nil
}

func (q *stubQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	return nil, ErrTaskNotFound
}

func (q *stubQueue) DeleteTask(ctx context.Context, taskID string) error { return nil }

func (q *stubQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error {
	q.updates = append(q.updates, status)
	q.results = append(q.results, result)
	return nil
}

func (q *stubQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error { return nil }

func (q *stubQueue) Close() error { return nil }

func newIndexTask(t *testing.T, payload DocumentIndexPayload) *Task {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return &Task{
		ID:         "task-1",
		Type:       TaskDocumentIndex,
		DocumentID: payload.DocumentID,
		Status:     StatusProcessing,
		Payload:    data,
		CreatedAt:  time.Now(),
	}
}

func TestDocumentHandlerTaskTypes(t *testing.T) {
	queue := &stubQueue{}

	full := NewDocumentHandler(queue,
		func(ctx context.Context, payload DocumentIndexPayload) (*DocumentIndexResult, error) {
			return &DocumentIndexResult{}, nil
		},
		func(ctx context.Context, payload DocumentCleanupPayload) error { return nil },
		nil,
	)
	assert.ElementsMatch(t, []TaskType{TaskDocumentIndex, TaskDocumentCleanup}, full.GetTaskTypes())

	indexOnly := NewDocumentHandler(queue,
		func(ctx context.Context, payload DocumentIndexPayload) (*DocumentIndexResult, error) {
			return &DocumentIndexResult{}, nil
		},
		nil,
		nil,
	)
	assert.Equal(t, []TaskType{TaskDocumentIndex}, indexOnly.GetTaskTypes())
}

func TestDocumentHandlerProcessIndex(t *testing.T) {
	queue := &stubQueue{}

	var gotPayload DocumentIndexPayload
	handler := NewDocumentHandler(queue,
		func(ctx context.Context, payload DocumentIndexPayload) (*DocumentIndexResult, error) {
			gotPayload = payload
			return &DocumentIndexResult{
				DocumentID:  payload.DocumentID,
				PageCount:   3,
				ChunkCount:  12,
				VectorCount: 12,
				Dimension:   1536,
			}, nil
		},
		nil,
		logrus.New(),
	)

	task := newIndexTask(t, DocumentIndexPayload{
		DocumentID: "doc-1",
		FilePath:   "/tmp/report.pdf",
		FileName:   "report.pdf",
		FileType:   "pdf",
		ChunkSize:  1000,
		Overlap:    200,
	})

	err := handler.ProcessTask(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "doc-1", gotPayload.DocumentID)
	assert.Equal(t, 1000, gotPayload.ChunkSize)

	// The handler stores the pipeline result on the task record.
	require.Len(t, queue.results, 1)
	result, ok := queue.results[0].(*DocumentIndexResult)
	require.True(t, ok)
	assert.Equal(t, 12, result.ChunkCount)
}

func TestDocumentHandlerIndexFailure(t *testing.T) {
	queue := &stubQueue{}

	wantErr := errors.New("embedding service unavailable")
	handler := NewDocumentHandler(queue,
		func(ctx context.Context, payload DocumentIndexPayload) (*DocumentIndexResult, error) {
			return nil, wantErr
		},
		nil,
		nil,
	)

	task := newIndexTask(t, DocumentIndexPayload{DocumentID: "doc-1"})

	err := handler.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, queue.updates)
}

func TestDocumentHandlerInvalidPayload(t *testing.T) {
	handler := NewDocumentHandler(&stubQueue{},
		func(ctx context.Context, payload DocumentIndexPayload) (*DocumentIndexResult, error) {
			t.Fatal("index function should not run on a bad payload")
			return nil, nil
		},
		nil,
		nil,
	)

	task := &Task{
		ID:      "task-1",
		Type:    TaskDocumentIndex,
		Payload: json.RawMessage(`{not json`),
	}

	err := handler.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDocumentHandlerProcessCleanup(t *testing.T) {
	var cleaned string
	handler := NewDocumentHandler(&stubQueue{},
		nil,
		func(ctx context.Context, payload DocumentCleanupPayload) error {
			cleaned = payload.DocumentID
			return nil
		},
		nil,
	)

	payload, err := MarshalPayload(DocumentCleanupPayload{DocumentID: "doc-9"})
	require.NoError(t, err)

	task := &Task{
		ID:      "task-2",
		Type:    TaskDocumentCleanup,
		Payload: payload,
	}

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	assert.Equal(t, "doc-9", cleaned)
}

func TestDocumentHandlerCleanupFallsBackToTaskDocument(t *testing.T) {
	var cleaned string
	handler := NewDocumentHandler(&stubQueue{},
		nil,
		func(ctx context.Context, payload DocumentCleanupPayload) error {
			cleaned = payload.DocumentID
			return nil
		},
		nil,
	)

	task := &Task{
		ID:         "task-3",
		Type:       TaskDocumentCleanup,
		DocumentID: "doc-from-task",
		Payload:    json.RawMessage("{}"),
	}

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	assert.Equal(t, "doc-from-task", cleaned)
}

func TestDocumentHandlerUnsupportedType(t *testing.T) {
	handler := NewDocumentHandler(&stubQueue{}, nil, nil, nil)

	task := &Task{ID: "task-4", Type: TaskType("unknown")}
	err := handler.ProcessTask(context.Background(), task)
	assert.Error(t, err)
}
