package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/statements/internal/jobs"
)

// Queue is an in-memory implementation of task publisher and consumer.
// It uses Go channels for task distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
// For multi-instance deployments, migrate to Cloud Tasks or Pub/Sub.
type Queue struct {
	taskChan    chan *jobs.Task
	closeChan   chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	store       jobs.TaskStore
	workerCount int
	closed      bool
}

// NewQueue creates a new in-memory task queue.
// bufferSize determines how many tasks can be queued before Publish blocks.
func NewQueue(bufferSize, workerCount int, store jobs.TaskStore) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Queue{
		taskChan:    make(chan *jobs.Task, bufferSize),
		closeChan:   make(chan struct{}),
		store:       store,
		workerCount: workerCount,
	}
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, task *jobs.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = jobs.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
	}

	select {
	case q.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface. The handler is called concurrently
// for each task, up to the configured number of workers.
func (q *Queue) Start(ctx context.Context, handler jobs.TaskHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.TaskHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case task := <-q.taskChan:
			if task == nil {
				return
			}
			q.processTask(ctx, task, handler)
		}
	}
}

func (q *Queue) processTask(ctx context.Context, task *jobs.Task, handler jobs.TaskHandler) {
	task.Status = jobs.TaskStatusRunning
	now := time.Now()
	task.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveTask(ctx, task)
	}

	err := handler(ctx, task)

	completedAt := time.Now()
	task.CompletedAt = &completedAt

	if err != nil {
		task.Status = jobs.TaskStatusFailed
		task.Error = err.Error()
	} else {
		task.Status = jobs.TaskStatusCompleted
		task.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveTask(ctx, task)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight tasks to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
