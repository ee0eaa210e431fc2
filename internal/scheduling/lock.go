package scheduling

import (
	"context"
	"time"

	"voice-agent-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Locker fences executor runs across processes. Release needs the token
// returned by Acquire, so a run that outlived its TTL cannot free a newer holder.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return utils.AcquireLock(ctx, l.rdb, key, ttl)
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	_, err := utils.ReleaseLock(ctx, l.rdb, key, token)
	return err
}

// NopLocker always grants the lock. Used when Redis is not configured; the
// per-row claim still prevents double execution.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (string, bool, error) {
	return "", true, nil
}

func (NopLocker) Release(context.Context, string, string) error { return nil }
