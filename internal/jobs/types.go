package jobs

import (
	"context"
	"time"
)

// TaskType identifies the kind of work a task carries.
type TaskType string

const (
	// TaskTypeExtractText runs both text extraction backends over a document.
	TaskTypeExtractText TaskType = "extract_text"
	// TaskTypeParseTransactions parses a statement's extracted text into transactions.
	TaskTypeParseTransactions TaskType = "parse_transactions"
)

// TaskStatus represents the current status of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting to be processed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is currently being processed.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Task is a unit of asynchronous pipeline work.
type Task struct {
	// TaskID is the unique identifier for this task.
	TaskID string `json:"task_id"`

	// Type selects the handler work performed for this task.
	Type TaskType `json:"type"`

	// DocumentID is the document the task operates on. Empty for
	// statement-scoped tasks.
	DocumentID string `json:"document_id,omitempty"`

	// StatementID is the statement the task operates on.
	StatementID string `json:"statement_id,omitempty"`

	// Status is the current status of the task.
	Status TaskStatus `json:"status"`

	// CreatedAt is when the task was published.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when a worker picked up the task.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the task finished (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the task failed.
	Error string `json:"error,omitempty"`
}

// Publisher defines the interface for submitting tasks to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// Publish submits a task for asynchronous processing.
	Publish(ctx context.Context, task *Task) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming tasks from a queue.
type Consumer interface {
	// Start begins consuming tasks from the queue.
	// The handler function is called for each task received.
	Start(ctx context.Context, handler TaskHandler) error

	// Stop stops consuming tasks and waits for in-flight tasks to complete.
	Stop(ctx context.Context) error
}

// TaskHandler is a function that processes a task.
// It returns an error if the task failed.
type TaskHandler func(ctx context.Context, task *Task) error

// TaskStore defines the interface for storing and retrieving task status.
type TaskStore interface {
	// SaveTask saves or updates a task's state.
	SaveTask(ctx context.Context, task *Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// ListTasks retrieves tasks with optional filtering.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
}

// TaskFilter defines filtering criteria for listing tasks.
type TaskFilter struct {
	// DocumentID filters tasks by document ID.
	DocumentID string

	// StatementID filters tasks by statement ID.
	StatementID string

	// Status filters tasks by status.
	Status TaskStatus

	// Limit limits the number of results.
	Limit int
}
