package queue

import (
	"context"
	"time"
)

// MemoryQueue is a channel-backed queue for tests and single-process use.
type MemoryQueue struct {
	tasks chan Task
}

func NewMemory(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{tasks: make(chan Task, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case task := <-q.tasks:
		return task, nil
	case <-timer.C:
		return Task{}, ErrEmpty
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Len reports queued task count. Test helper.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

var _ Queue = (*MemoryQueue)(nil)
