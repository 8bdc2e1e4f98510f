// Package lock provides a small lock-with-TTL capability used to scope hold
// creation to one writer per truck request at a time.  Acquisition must be
// atomic and the TTL guarantees a crashed holder can never deadlock the
// system.  The database's conditional UPDATE remains the source of truth
// for the capacity invariant; the lock only narrows the window in which
// concurrent creators do wasted transaction work.
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is the capability contract: acquire a named lock for at most ttl,
// release it when done.  Implementations must make TryAcquire atomic.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// RedisLocker implements Locker with SET NX PX.  A nil client yields a
// no-op locker so single-instance deployments without Redis keep working.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisLocker returns a Locker backed by the given Redis client, or a
// no-op Locker when the client is nil.
func NewRedisLocker(rdb *redis.Client) Locker {
	if rdb == nil {
		return nopLocker{}
	}
	return &RedisLocker{rdb: rdb, prefix: "lock:"}
}

// TryAcquire attempts an atomic SET NX with expiry.  It returns false both
// when the lock is held elsewhere and when Redis is unreachable; callers
// proceed either way and rely on the database for correctness.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release deletes the lock key.  Errors are ignored: an unreleased lock
// simply expires with its TTL.
func (l *RedisLocker) Release(ctx context.Context, key string) {
	_ = l.rdb.Del(ctx, l.prefix+key).Err()
}

type nopLocker struct{}

func (nopLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (nopLocker) Release(ctx context.Context, key string) {}
