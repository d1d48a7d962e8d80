package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker on top of redislock. One instance is
// shared by the HTTP surface and the worker so concurrent recalculation
// of the same scope is excluded across processes.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker builds a locker from a redis client.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Obtain takes the lock or reports ErrConcurrentRecalculation when it
// is already held. There is no retry: a second recalculation of the
// same scope is rejected, not queued.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrConcurrentRecalculation
		}
		return nil, err
	}
	return lock, nil
}
