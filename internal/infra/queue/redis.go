package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// RedisAlertQueue реализует очередь задач на базе Redis lists.
type RedisAlertQueue struct {
	client *redis.Client
	key    string
}

var _ domain.AlertQueue = (*RedisAlertQueue)(nil)

// NewRedisAlertQueue создаёт очередь по указанному ключу.
func NewRedisAlertQueue(client *redis.Client, key string) *RedisAlertQueue {
	return &RedisAlertQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisAlertQueue) Enqueue(ctx context.Context, job domain.AlertJob) error {
	prepareJob(&job)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Неуспешный ack возвращает задачу в очередь со следующей попыткой.
func (q *RedisAlertQueue) Receive(ctx context.Context) (domain.AlertJob, domain.AlertAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.AlertJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.AlertJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.AlertJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.AlertJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.AlertJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.AlertJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			retry := job
			retry.Attempt++
			return q.Enqueue(context.Background(), retry)
		}
		return job, ack, nil
	}
}

func prepareJob(job *domain.AlertJob) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
}
