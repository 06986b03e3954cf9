package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"economiza/internal/ingest/queue"
)

const (
	// maxDeliveries bounds redeliveries of a failing task.
	maxDeliveries = 3

	dequeueTimeout = time.Second
)

// TaskProcessor consumes one deferred task.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task queue.Task) Outcome
}

// Worker drains the deferred queue with a fixed-size pool. Failed tasks with
// transient failures are redelivered with exponential backoff; permanent
// failures are dropped after logging.
type Worker struct {
	queue     queue.Queue
	processor TaskProcessor
	logger    *slog.Logger
	workers   int

	// backoffBase is the delay before the first redelivery; tests shrink it.
	backoffBase time.Duration
}

func NewWorker(q queue.Queue, processor TaskProcessor, workers int, logger *slog.Logger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		queue:       q,
		processor:   processor,
		logger:      logger,
		workers:     workers,
		backoffBase: 2 * time.Second,
	}
}

// Run blocks until the context is cancelled, then returns nil.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		task, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.ErrorContext(ctx, "dequeue failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dequeueTimeout):
			}
			continue
		}
		w.handle(ctx, task)
	}
}

func (w *Worker) handle(ctx context.Context, task queue.Task) {
	task.Deliveries++
	outcome := w.processor.ProcessTask(ctx, task)

	switch outcome.Kind {
	case OutcomeSaved, OutcomeConflict:
		w.logger.InfoContext(ctx, "deferred task finished",
			"task_id", task.ID.String(),
			"outcome", string(outcome.Kind),
			"deliveries", task.Deliveries,
		)
	case OutcomeFailed:
		if retryableFailure(outcome.Failure) && task.Deliveries < maxDeliveries {
			w.redeliver(ctx, task, outcome)
			return
		}
		w.logger.ErrorContext(ctx, "deferred task dropped",
			"task_id", task.ID.String(),
			"failure", string(outcome.Failure),
			"message", outcome.Message,
			"deliveries", task.Deliveries,
		)
	}
}

func (w *Worker) redeliver(ctx context.Context, task queue.Task, outcome Outcome) {
	backoff := w.backoffBase << (task.Deliveries - 1)
	w.logger.WarnContext(ctx, "deferred task failed, redelivering",
		"task_id", task.ID.String(),
		"failure", string(outcome.Failure),
		"deliveries", task.Deliveries,
		"backoff", backoff.String(),
	)
	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}
	if err := w.queue.Enqueue(ctx, task); err != nil {
		w.logger.ErrorContext(ctx, "redelivery enqueue failed",
			"task_id", task.ID.String(),
			"error", err.Error(),
		)
	}
}

// retryableFailure mirrors the provider taxonomy: only upstream and internal
// hiccups are worth another delivery. Bad input never heals.
func retryableFailure(kind FailureKind) bool {
	switch kind {
	case FailureProvider, FailureRateLimited, FailureInternal:
		return true
	default:
		return false
	}
}
