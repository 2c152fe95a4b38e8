package rediscache

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "token", []byte("abc"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocker_TryLock(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLocker(mr.Addr())
	ctx := context.Background()

	release, err := l.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)

	again, err := l.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.Nil(t, again)

	require.NoError(t, release(ctx))

	again, err = l.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, again)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	now := time.Date(2026, 5, 4, 10, 0, 5, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "carrier:FedEx", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "carrier:FedEx", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	// rejected calls are not counted
	ok, n, _ = rl.Allow(ctx, "carrier:FedEx", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(2), n)

	key := fmt.Sprintf("colistrack:rl:carrier:FedEx:%d", now.UnixNano()/int64(time.Minute))
	require.True(t, mr.Exists(key))
	require.Equal(t, time.Minute, mr.TTL(key))

	now = now.Add(time.Minute)
	ok, n, _ = rl.Allow(ctx, "carrier:FedEx", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	_, _, err = rl.Allow(ctx, "carrier:FedEx", 2, 0)
	require.Error(t, err)
}

func TestNewFromURL_SharesPool(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewFromURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	ok, _, err := c.RateLimiter().Allow(ctx, "carrier:FedEx", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, _ = c.RateLimiter().Allow(ctx, "carrier:FedEx", 1, time.Minute)
	require.False(t, ok)

	_, err = NewFromURL("http://not-redis")
	require.Error(t, err)
}
