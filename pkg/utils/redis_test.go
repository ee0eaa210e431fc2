package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAcquireLock_SingleHolder(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	token, ok, err := AcquireLock(ctx, rdb, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = AcquireLock(ctx, rdb, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be rejected")

	released, err := ReleaseLock(ctx, rdb, "lock:test", token)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = AcquireLock(ctx, rdb, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLock_ExpiresAfterTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := AcquireLock(ctx, rdb, "lock:ttl", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	_, ok, err = AcquireLock(ctx, rdb, "lock:ttl", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLock_StaleHolderCannotFreeNewHolder(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	stale, ok, err := AcquireLock(ctx, rdb, "lock:run", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)
	current, ok, err := AcquireLock(ctx, rdb, "lock:run", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := ReleaseLock(ctx, rdb, "lock:run", stale)
	require.NoError(t, err)
	assert.False(t, released)

	v, err := mr.Get("lock:run")
	require.NoError(t, err)
	assert.Equal(t, current, v)
}

func TestAcquireLock_RejectsBadInput(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	_, _, err := AcquireLock(ctx, nil, "k", time.Second)
	assert.Error(t, err)
	_, _, err = AcquireLock(ctx, rdb, "", time.Second)
	assert.Error(t, err)
	_, _, err = AcquireLock(ctx, rdb, "k", 0)
	assert.Error(t, err)
	_, err = ReleaseLock(ctx, rdb, "k", "")
	assert.Error(t, err)
}
