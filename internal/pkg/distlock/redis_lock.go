package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces job locks in a shared Redis.
const KeyPrefix = "mailpro:lock:"

// compare-and-delete so a run whose TTL lapsed cannot free its successor's lock
var unlockIfOwner = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is a single-owner job lock held for at most ttl.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on KeyPrefix+job with a fresh owner token.
func NewRedisLock(client *redis.Client, job string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    KeyPrefix + job,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lock if nobody holds it. It reports false, without an
// error, when another run owns it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	err := l.client.SetArgs(ctx, l.key, l.token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("acquiring %s: %w", l.key, err)
	}
}

// Release frees the lock if this instance still owns it; otherwise it is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := unlockIfOwner.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("releasing %s: %w", l.key, err)
	}
	return nil
}
