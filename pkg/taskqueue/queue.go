package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

// Queue enqueues tasks and tracks their state.
type Queue interface {
	// Enqueue adds a task to the queue.
	Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error)

	// EnqueueAt adds a task to be processed at the given time.
	EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error)

	// EnqueueIn adds a task to be processed after the given delay.
	EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error)

	// GetTask returns the task with the given id.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByDocument returns the tasks attached to a document.
	GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error)

	// WaitForTask blocks until the task finishes or the timeout
	// elapses. A zero timeout waits indefinitely.
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, taskID string) error

	// UpdateTaskStatus sets the status and result of a task.
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// NotifyTaskUpdate publishes a status-change notification.
	NotifyTaskUpdate(ctx context.Context, taskID string) error

	// Close releases the queue's connections.
	Close() error
}

// Handler executes tasks of the types it declares.
type Handler interface {
	// ProcessTask runs one task.
	ProcessTask(ctx context.Context, task *Task) error

	// GetTaskTypes returns the task types this handler accepts.
	GetTaskTypes() []TaskType
}

// Worker runs registered handlers against the queue.
type Worker interface {
	// RegisterHandler attaches a handler to a task type.
	RegisterHandler(taskType TaskType, handler Handler)

	// Start begins processing tasks.
	Start() error

	// Stop shuts the worker down.
	Stop()
}

// Config holds the queue settings.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	RetryLimit    int
	RetryDelay    time.Duration
	Queues        map[string]int // queue name to priority
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		RedisDB:     0,
		Concurrency: 10,
		RetryLimit:  3,
		RetryDelay:  time.Minute,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	}
}

// TaskInfo is the client-facing view of a task.
type TaskInfo struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	DocumentID  string     `json:"document_id"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Progress    float64    `json:"progress"`
}

// Factory builds a Queue from its configuration.
type Factory func(cfg *Config) (Queue, error)

// NewTaskInfo derives a TaskInfo from a Task.
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		DocumentID:  task.DocumentID,
		Status:      task.Status,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Progress:    getTaskProgress(task),
	}
}

// getTaskProgress maps a status to a coarse progress percentage.
func getTaskProgress(task *Task) float64 {
	switch task.Status {
	case StatusPending:
		return 0.0
	case StatusProcessing:
		return 50.0
	case StatusCompleted:
		return 100.0
	case StatusFailed:
		return 50.0
	default:
		return 0.0
	}
}

// ErrTaskNotFound is returned when a task id has no record.
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout is returned when WaitForTask hits its deadline.
var ErrTaskTimeout = TaskError("task timed out")

// ErrInvalidPayload is returned when a payload cannot be decoded.
var ErrInvalidPayload = TaskError("invalid task payload")

// TaskError is a queue-level error string.
type TaskError string

func (e TaskError) Error() string {
	return string(e)
}

// MarshalPayload serializes a payload to JSON.
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload deserializes JSON into a payload struct.
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
