// Package redisqueue consumes Redis lists as trigger input: a queue of
// JSON documents firing runs directly, and a queue of metric samples
// feeding threshold watchers.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const popTimeout = 1 * time.Second

// Options configures the Redis connection shared by queue sources.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func newClient(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}

// pop blocks up to popTimeout for the next queue entry. Returns ("",
// false, nil) when the queue stayed empty.
func pop(ctx context.Context, client *redis.Client, queue string) (string, bool, error) {
	result, err := client.BLPop(ctx, popTimeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}

	if len(result) < 2 {
		return "", false, nil
	}

	return result[1], true, nil
}
