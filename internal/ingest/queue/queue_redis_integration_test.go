//go:build integration

package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"economiza/internal/ingest/queue"
	"economiza/internal/platform/config"
	"economiza/internal/platform/redis"
	"economiza/pkg/testutil/containers"
)

type RedisQueueSuite struct {
	suite.Suite
	container *containers.RedisContainer
	client    *redis.Client
	queue     *queue.RedisQueue
}

func TestRedisQueueSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisQueueSuite))
}

func (s *RedisQueueSuite) SetupSuite() {
	s.container = containers.GetManager().GetRedis(s.T())

	client, err := redis.New(config.RedisConfig{
		URL:          s.container.URL,
		PoolSize:     4,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	s.Require().NoError(err)
	s.client = client
	s.queue = queue.NewRedis(client, "test:receipts:pending")
}

func (s *RedisQueueSuite) SetupTest() {
	s.Require().NoError(s.container.FlushAll(context.Background()))
}

func (s *RedisQueueSuite) TestRoundTripPreservesTask() {
	ctx := context.Background()
	task := queue.Task{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		QRText:     "https://www.fazenda.sp.gov.br/nfce/qrcode?p=123",
		AccessKey:  "35200112345678901234567890123456789012345678",
		RawPayload: []byte(`{"access_key":"35200112345678901234567890123456789012345678"}`),
		Deliveries: 2,
		EnqueuedAt: time.Date(2024, 4, 12, 15, 33, 0, 0, time.UTC),
	}

	s.Require().NoError(s.queue.Enqueue(ctx, task))

	got, err := s.queue.Dequeue(ctx, 2*time.Second)
	s.Require().NoError(err)
	s.Equal(task.ID, got.ID)
	s.Equal(task.OwnerID, got.OwnerID)
	s.Equal(task.QRText, got.QRText)
	s.Equal(task.AccessKey, got.AccessKey)
	s.JSONEq(string(task.RawPayload), string(got.RawPayload))
	s.Equal(task.Deliveries, got.Deliveries)
	s.True(task.EnqueuedAt.Equal(got.EnqueuedAt))
}

func (s *RedisQueueSuite) TestFIFOOrdering() {
	ctx := context.Background()
	first := queue.Task{ID: uuid.New(), QRText: "first"}
	second := queue.Task{ID: uuid.New(), QRText: "second"}

	s.Require().NoError(s.queue.Enqueue(ctx, first))
	s.Require().NoError(s.queue.Enqueue(ctx, second))

	got, err := s.queue.Dequeue(ctx, 2*time.Second)
	s.Require().NoError(err)
	s.Equal(first.ID, got.ID)

	got, err = s.queue.Dequeue(ctx, 2*time.Second)
	s.Require().NoError(err)
	s.Equal(second.ID, got.ID)
}

func (s *RedisQueueSuite) TestDequeueTimeout() {
	_, err := s.queue.Dequeue(context.Background(), time.Second)
	s.Require().ErrorIs(err, queue.ErrEmpty)
}
