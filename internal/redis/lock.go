package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a named lock stays held past the wait budget.
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockRetryDelay = 50 * time.Millisecond

// LockStore hands out distributed mutexes backed by Redis.
type LockStore struct {
	rs *redsync.Redsync
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{rs: redsync.New(goredis.NewPool(client))}
}

// Acquire obtains the named lock, retrying for at most wait. The lock expires after ttl
// if never released. The returned release func is safe to defer.
func (s *LockStore) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), error) {
	tries := int(wait/lockRetryDelay) + 1

	mutex := s.rs.NewMutex("lock:"+name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(lockRetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, name, err)
	}

	return func() {
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}, nil
}
