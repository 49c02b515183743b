package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by TryLock when another holder owns the key.
var ErrLockHeld = errors.New("redis: lock held")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-holder lease on a key. It expires after its TTL even if
// the holder never releases it.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// TryLock acquires key for ttl or returns ErrLockHeld.
func (ps *PubSub) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()

	ok, err := ps.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.PubSub.TryLock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis.PubSub.TryLock: %s: %w", key, ErrLockHeld)
	}

	return &Lock{client: ps.client, key: key, token: token}, nil
}

// Release gives up the lock. Releasing an expired or stolen lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis.Lock.Release: %w", err)
	}
	return nil
}

// RetentionLockKey guards the retention sweep across replicas.
const RetentionLockKey = "lock:retention-sweep"
