package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL        = 30 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
	defaultPrefix     = "graphroute:lock:"
)

var ErrLockLost = errors.New("lock expired before release")

// release deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extend pushes the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process connected to the same server.
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
	prefix     string
}

type RedisOption func(*Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) RedisOption {
	return func(r *Redis) { r.retryDelay = delay }
}

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	locker := &Redis{
		client:     client,
		ttl:        defaultTTL,
		retryDelay: defaultRetryDelay,
		prefix:     defaultPrefix,
	}

	for _, opt := range opts {
		opt(locker)
	}

	return locker
}

func (r *Redis) Lock(ctx context.Context, key string) (Lease, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	for {
		acquired, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	lease := &redisLease{
		client: r.client,
		key:    redisKey,
		token:  token,
		ttl:    r.ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go lease.renew()

	return lease, nil
}

// redisLease extends its key every third of the TTL until released, so a
// long walk keeps the lock.
type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	lost atomic.Bool
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (l *redisLease) renew() {
	defer close(l.done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			extended, err := extendScript.Run(context.Background(), l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			if err != nil {
				// Transient failures are retried on the next tick while the key lives.
				continue
			}

			if extended == 0 {
				l.lost.Store(true)

				return
			}
		}
	}
}

func (l *redisLease) Held(ctx context.Context) error {
	if l.lost.Load() {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}

	current, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}

	if err != nil {
		return fmt.Errorf("failed to check lock %s: %w", l.key, err)
	}

	if current != l.token {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}

	return nil
}

func (l *redisLease) Release() error {
	var err error

	l.once.Do(func() {
		close(l.stop)
		<-l.done

		var released int

		released, err = releaseScript.Run(context.Background(), l.client, []string{l.key}, l.token).Int()
		if err != nil {
			err = fmt.Errorf("failed to release lock %s: %w", l.key, err)

			return
		}

		if released == 0 {
			err = fmt.Errorf("%w: %s", ErrLockLost, l.key)
		}
	})

	return err
}
