package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a best-effort cross-process mutex on top of SET NX PX.
type Locker struct {
	c *redis.Client
}

func NewLocker(addr string) *Locker {
	return &Locker{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// Locker shares the cache connection pool.
func (r *RedisCache) Locker() *Locker {
	return &Locker{c: r.c}
}

// TryLock returns a release func when the lock was acquired, nil otherwise.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis lock")
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.c, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return errors.Wrap(err, "redis unlock")
		}
		return nil
	}, nil
}
