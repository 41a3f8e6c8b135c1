// Package queue carries job ids from API processes to render workers over
// a Redis list.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/pkg/errors"
)

const defaultPopTimeout = 5 * time.Second

type RedisQueue struct {
	rdb        *redis.Client
	queueName  string
	popTimeout time.Duration
}

type Option func(*RedisQueue)

// WithPopTimeout bounds how long Pop blocks server side. Redis counts the
// timeout in whole seconds.
func WithPopTimeout(d time.Duration) Option {
	return func(q *RedisQueue) {
		q.popTimeout = d
	}
}

func NewRedisQueue(rdb *redis.Client, queueName string, opts ...Option) *RedisQueue {
	q := &RedisQueue{rdb: rdb, queueName: queueName, popTimeout: defaultPopTimeout}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Dispatch pushes a job id for the next free worker (LPUSH).
func (q *RedisQueue) Dispatch(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, q.queueName, jobID).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.dispatch", "failed to push job").
			WithField("queue", q.queueName)
	}
	return nil
}

// Pop blocks until a job id is available or the pop timeout passes (BRPOP).
// A timeout yields an empty id and no error.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Len reports how many ids wait in the queue.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}

// PopTimeout is the server-side block per Pop call.
func (q *RedisQueue) PopTimeout() time.Duration {
	return q.popTimeout
}
