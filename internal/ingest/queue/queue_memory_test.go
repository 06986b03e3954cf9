package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(4)

	first := Task{ID: uuid.New(), QRText: "first"}
	second := Task{ID: uuid.New(), QRText: "second"}
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))
	assert.Equal(t, 2, q.Len())

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestMemoryQueueDequeueTimeout(t *testing.T) {
	q := NewMemory(4)
	_, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryQueueDequeueCancellation(t *testing.T) {
	q := NewMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
