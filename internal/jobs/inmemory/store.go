package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/avolkov/statements/internal/jobs"
)

// Store is an in-memory implementation of TaskStore.
// Data is lost on service restart. For persistence, use a database-backed store.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*jobs.Task
}

// NewStore creates a new in-memory task store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*jobs.Task),
	}
}

// SaveTask implements the TaskStore interface.
func (s *Store) SaveTask(ctx context.Context, task *jobs.Task) error {
	if task.TaskID == "" {
		return fmt.Errorf("task ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	taskCopy := *task
	s.tasks[task.TaskID] = &taskCopy

	return nil
}

// GetTask implements the TaskStore interface.
func (s *Store) GetTask(ctx context.Context, taskID string) (*jobs.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	taskCopy := *task
	return &taskCopy, nil
}

// ListTasks implements the TaskStore interface.
func (s *Store) ListTasks(ctx context.Context, filter jobs.TaskFilter) ([]*jobs.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.Task

	for _, task := range s.tasks {
		if filter.DocumentID != "" && task.DocumentID != filter.DocumentID {
			continue
		}
		if filter.StatementID != "" && task.StatementID != filter.StatementID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}

		taskCopy := *task
		result = append(result, &taskCopy)
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

var _ jobs.TaskStore = (*Store)(nil)
