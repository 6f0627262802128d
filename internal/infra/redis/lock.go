package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"event-companion-sync/internal/domain"
	"event-companion-sync/internal/domain/ports/repository"
)

var _ repository.Locker = (*RedisLocker)(nil)

// RedisLocker is a SET NX lock with a token-checked release.
type RedisLocker struct {
	cli     *redis.Client
	retries int
	backoff time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, retries: 5, backoff: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only while it still holds token; an expired lock taken
// over by another holder is left alone.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
