package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis connects the shared Redis client. The same client backs the job
// queues (BRPOP blocks one connection per pool worker), the dead-letter lists
// and the balance read-cache, so the connection pool is sized past the worker
// count to keep cache reads from queueing behind blocked pops.
func NewRedis(redisURL string, workerPoolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = workerPoolSize + 10
	opts.MinIdleConns = 2

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}
