package repository

import (
	"context"
	"time"
)

// Locker serializes work on a key across processes (e.g. Redis SET NX).
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
