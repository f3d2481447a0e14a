package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the lock is already held by another owner.
var ErrLockHeld = errors.New("lock already held")

// releaseScript deletes the lock key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker provides keyed mutual exclusion backed by Redis.
// It is used to serialize state transitions per order.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLocker creates a new Locker. The TTL bounds how long a crashed
// holder can block other workers.
func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock for the given key. It returns a release function
// on success and ErrLockHeld if another owner holds the lock.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		// Best effort; the TTL cleans up if the release is lost.
		releaseScript.Run(context.Background(), l.client, []string{l.key(key)}, token)
	}
	return release, nil
}

func (l *Locker) key(key string) string {
	return "lock:" + key
}
