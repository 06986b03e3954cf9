package ingest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economiza/internal/ingest/queue"
)

type stubProcessor struct {
	mu       sync.Mutex
	outcomes []Outcome
	seen     []queue.Task
}

func (s *stubProcessor) ProcessTask(_ context.Context, task queue.Task) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, task)
	if len(s.outcomes) == 0 {
		return saved(uuid.New())
	}
	next := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return next
}

func (s *stubProcessor) deliveries() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.seen))
	for i, task := range s.seen {
		out[i] = task.Deliveries
	}
	return out
}

func newTestWorker(q queue.Queue, p TaskProcessor) *Worker {
	w := NewWorker(q, p, 1, slog.New(slog.DiscardHandler))
	w.backoffBase = time.Millisecond
	return w
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	q := queue.NewMemory(16)
	p := &stubProcessor{outcomes: []Outcome{
		failed(FailureProvider, "upstream down"),
		failed(FailureProvider, "still down"),
		saved(uuid.New()),
	}}
	w := newTestWorker(q, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, queue.Task{ID: uuid.New(), OwnerID: uuid.New(), QRText: "qr"}))

	assert.Eventually(t, func() bool {
		return len(p.deliveries()) == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// Delivery counter increments with each attempt.
	assert.Equal(t, []int{1, 2, 3}, p.deliveries())
}

func TestWorkerDropsAfterMaxDeliveries(t *testing.T) {
	q := queue.NewMemory(16)
	p := &stubProcessor{outcomes: []Outcome{
		failed(FailureProvider, "down"),
		failed(FailureProvider, "down"),
		failed(FailureProvider, "down"),
		failed(FailureProvider, "down"),
	}}
	w := newTestWorker(q, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, queue.Task{ID: uuid.New(), QRText: "qr"}))

	assert.Eventually(t, func() bool {
		return len(p.deliveries()) == maxDeliveries
	}, 5*time.Second, 10*time.Millisecond)

	// Give the worker a chance to (incorrectly) redeliver past the cap.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, p.deliveries(), maxDeliveries)

	cancel()
	require.NoError(t, <-done)
}

func TestWorkerDoesNotRetryPermanentFailures(t *testing.T) {
	for _, kind := range []FailureKind{FailureInvalidQR, FailureMalformed, FailureSecurity} {
		q := queue.NewMemory(16)
		p := &stubProcessor{outcomes: []Outcome{failed(kind, "permanent")}}
		w := newTestWorker(q, p)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		require.NoError(t, q.Enqueue(ctx, queue.Task{ID: uuid.New(), QRText: "qr"}))

		assert.Eventually(t, func() bool {
			return len(p.deliveries()) == 1
		}, 5*time.Second, 10*time.Millisecond, string(kind))

		time.Sleep(50 * time.Millisecond)
		assert.Len(t, p.deliveries(), 1, string(kind))

		cancel()
		require.NoError(t, <-done)
	}
}
