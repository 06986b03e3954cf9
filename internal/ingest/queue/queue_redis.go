package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"economiza/internal/platform/redis"
)

// ErrEmpty reports that a blocking dequeue timed out with no task.
var ErrEmpty = errors.New("queue is empty")

// RedisQueue backs the task queue with a Redis list. LPUSH plus BRPOP gives
// FIFO delivery across any number of worker processes.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Task, error) {
	values, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return Task{}, ErrEmpty
	}
	if err != nil {
		return Task{}, fmt.Errorf("dequeue task: %w", err)
	}
	// BRPOP returns [key, value].
	if len(values) != 2 {
		return Task{}, fmt.Errorf("unexpected brpop reply of %d values", len(values))
	}
	var task Task
	if err := json.Unmarshal([]byte(values[1]), &task); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, nil
}

var _ Queue = (*RedisQueue)(nil)
