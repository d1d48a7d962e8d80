package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fp/meridian-fp/internal/shared"
)

func newRedisLocker(t *testing.T) *RedisLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb)
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker := newRedisLocker(t)
	ctx := context.Background()
	key := shared.ForecastLockKey(1, 2024)

	lock, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrConcurrentRecalculation)

	// A different scope is not blocked.
	other, err := locker.Obtain(ctx, shared.ForecastLockKey(2, 2024), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))

	relock, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, relock.Release(ctx))
}
