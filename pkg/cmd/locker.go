package cmd

import (
	"context"
	"fmt"

	"github.com/dukex/graphroute/pkg/locker"
	"github.com/redis/go-redis/v9"
)

// NewLocker returns a Redis lock when redisURL is set, so several processes
// can share route instances, and an in-process lock otherwise. The returned
// close function releases the Redis client.
func NewLocker(ctx context.Context, redisURL string) (locker.Locker, func() error, error) {
	if redisURL == "" {
		return locker.NewLocal(), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return locker.NewRedis(client, locker.WithPrefix("graphroute:lock:")), client.Close, nil
}
