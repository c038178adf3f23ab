package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// exerciseReportCache runs the behaviour every reportCache must share.
func exerciseReportCache(t *testing.T, c reportCache) {
	ctx := context.Background()

	_, gen, hit, err := c.Get(ctx, 1, "daily:2026-10-19")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, 1, gen, "daily:2026-10-19", []byte(`{"a":1}`)))
	val, _, hit, err := c.Get(ctx, 1, "daily:2026-10-19")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `{"a":1}`, string(val))

	// Other users are unaffected.
	_, _, hit, err = c.Get(ctx, 2, "daily:2026-10-19")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Invalidate(ctx, 1))
	_, newGen, hit, err := c.Get(ctx, 1, "daily:2026-10-19")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEqual(t, gen, newGen)

	// A report built before the invalidation must not become visible.
	require.NoError(t, c.Set(ctx, 1, gen, "daily:2026-10-19", []byte(`{"stale":true}`)))
	_, _, hit, err = c.Get(ctx, 1, "daily:2026-10-19")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryReportCache(t *testing.T) {
	exerciseReportCache(t, newMemoryReportCache(time.Minute))
}

func TestMemoryReportCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := newMemoryReportCache(time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, 1, 0, "k", []byte("v")))
	_, _, hit, _ := c.Get(ctx, 1, "k")
	assert.True(t, hit)

	now = now.Add(2 * time.Minute)
	_, _, hit, _ = c.Get(ctx, 1, "k")
	assert.False(t, hit)
}

func TestMemoryReportCache_SweepReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := newMemoryReportCache(time.Minute)
	c.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Set(ctx, 1+i%3, 0, fmt.Sprintf("trend:%d", i), []byte("v")))
	}
	require.Equal(t, 100, c.size())

	now = now.Add(30 * time.Second)
	require.NoError(t, c.Set(ctx, 1, 0, "daily:fresh", []byte("v")))

	now = now.Add(45 * time.Second)
	c.sweep()
	assert.Equal(t, 1, c.size(), "only the entry still inside its TTL survives")
	assert.Len(t, c.entries, 1, "users with nothing left are dropped")

	_, _, hit, _ := c.Get(ctx, 1, "daily:fresh")
	assert.True(t, hit)
}

func TestMemoryReportCache_PerUserBound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := newMemoryReportCache(time.Hour)
	c.now = func() time.Time { return now }

	for i := 0; i < maxMemoryEntriesPerUser*4; i++ {
		now = now.Add(time.Millisecond)
		require.NoError(t, c.Set(ctx, 1, 0, fmt.Sprintf("rolling:%d", i), []byte("v")))
	}
	assert.Equal(t, maxMemoryEntriesPerUser, c.size())

	_, _, hit, _ := c.Get(ctx, 1, fmt.Sprintf("rolling:%d", maxMemoryEntriesPerUser*4-1))
	assert.True(t, hit, "the newest entry is kept")
	_, _, hit, _ = c.Get(ctx, 1, "rolling:0")
	assert.False(t, hit, "the oldest entry was evicted")

	require.NoError(t, c.Set(ctx, 2, 0, "daily:x", []byte("v")))
	assert.Equal(t, maxMemoryEntriesPerUser+1, c.size(), "other users are not limited by user 1")
}

func TestMemoryReportCache_StartCleanup(t *testing.T) {
	ctx := context.Background()
	c := newMemoryReportCache(time.Millisecond)
	require.NoError(t, c.Set(ctx, 1, 0, "k", []byte("v")))

	done := make(chan struct{})
	defer close(done)
	c.startCleanup(5*time.Millisecond, done)

	assert.Eventually(t, func() bool { return c.size() == 0 }, time.Second, 5*time.Millisecond)
}

func newMiniredisCache(t *testing.T, ttl time.Duration) (*redisReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return newRedisReportCache(client, ttl), mr
}

func TestRedisReportCache(t *testing.T) {
	c, _ := newMiniredisCache(t, time.Minute)
	exerciseReportCache(t, c)
}

func TestRedisReportCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newMiniredisCache(t, time.Minute)

	require.NoError(t, c.Set(ctx, 7, 0, "k", []byte("v")))
	assert.Equal(t, time.Minute, mr.TTL(c.entryKey(7, 0, "k")))

	mr.FastForward(2 * time.Minute)
	_, _, hit, err := c.Get(ctx, 7, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := connectRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = connectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}

// failingCache errors on every call.
type failingCache struct{}

func (failingCache) Get(context.Context, int, string) ([]byte, int64, bool, error) {
	return nil, 0, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, int, int64, string, []byte) error {
	return errors.New("cache down")
}
func (failingCache) Invalidate(context.Context, int) error { return errors.New("cache down") }

type sampleReport struct {
	N int `json:"n"`
}

func TestCachedReport(t *testing.T) {
	ctx := context.Background()
	h := &Handler{log: zap.NewNop(), reports: newMemoryReportCache(time.Minute)}

	builds := 0
	build := func() (sampleReport, error) {
		builds++
		return sampleReport{N: builds}, nil
	}

	r, err := cachedReport(ctx, h, 1, "test", "k", build)
	require.NoError(t, err)
	assert.Equal(t, 1, r.N)

	r, err = cachedReport(ctx, h, 1, "test", "k", build)
	require.NoError(t, err)
	assert.Equal(t, 1, r.N, "second call should be served from cache")
	assert.Equal(t, 1, builds)

	h.invalidateReports(ctx, 1)
	r, err = cachedReport(ctx, h, 1, "test", "k", build)
	require.NoError(t, err)
	assert.Equal(t, 2, r.N)
}

func TestCachedReport_BuildError(t *testing.T) {
	h := &Handler{log: zap.NewNop(), reports: newMemoryReportCache(time.Minute)}
	boom := errors.New("boom")
	_, err := cachedReport(context.Background(), h, 1, "test", "k", func() (sampleReport, error) {
		return sampleReport{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, _, hit, _ := h.reports.Get(context.Background(), 1, "k")
	assert.False(t, hit)
}

func TestCachedReport_CacheFailureFallsThrough(t *testing.T) {
	h := &Handler{log: zap.NewNop(), reports: failingCache{}}
	builds := 0
	for i := 0; i < 2; i++ {
		r, err := cachedReport(context.Background(), h, 1, "test", "k", func() (sampleReport, error) {
			builds++
			return sampleReport{N: 5}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 5, r.N)
	}
	assert.Equal(t, 2, builds)
	h.invalidateReports(context.Background(), 1)
}
