// Package queue carries deferred ingestion tasks between the HTTP path and
// the worker pool. Production uses a Redis list; tests use a channel.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task is one deferred ingestion unit. The payload fetched at scan time
// travels with the task so the worker never contacts the provider again;
// the raw QR text is kept for encryption at persistence time.
type Task struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`
	QRText  string    `json:"qr_text"`

	// AccessKey lets the worker run its idempotency check before decoding
	// the payload.
	AccessKey string `json:"access_key,omitempty"`

	// RawPayload is the serialized provider document.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	// Deliveries counts how many times this task has been handed to a
	// worker, including the current delivery.
	Deliveries int       `json:"deliveries"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the transport for deferred tasks.
type Queue interface {
	// Enqueue makes the task available to workers. The task keeps its ID so
	// callers can hand it to the client as a tracking reference.
	Enqueue(ctx context.Context, task Task) error

	// Dequeue blocks until a task arrives, the timeout elapses (returning
	// ErrEmpty), or the context is cancelled.
	Dequeue(ctx context.Context, timeout time.Duration) (Task, error)
}
