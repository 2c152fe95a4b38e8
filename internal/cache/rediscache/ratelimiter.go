package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "colistrack:rl:"

// windowScript counts one call in the current bucket. The TTL is set when the
// bucket is created only, and calls past the limit are not counted.
var windowScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n >= tonumber(ARGV[1]) then
  return {0, n}
end
n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, n}
`)

// RateLimiter is a fixed-window counter shared by every worker replica.
type RateLimiter struct {
	c   *redis.Client
	now func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{c: redis.NewClient(&redis.Options{Addr: addr}), now: time.Now}
}

// RateLimiter shares the cache connection pool.
func (r *RedisCache) RateLimiter() *RateLimiter {
	return &RateLimiter{c: r.c, now: time.Now}
}

// Allow reports whether one more call under key fits into limit for the
// current window, together with the number of calls counted so far.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		return false, 0, errors.New("redis ratelimit: window must be positive")
	}
	bucket := rl.now().UnixNano() / int64(window)
	k := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, bucket)

	res, err := windowScript.Run(ctx, rl.c, []string{k}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	return res[0] == 1, res[1], nil
}
