package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// reportCache stores rendered reports per user. Every key is scoped by a
// per-user generation; Invalidate bumps the generation so all of the user's
// cached reports become unreachable at once. Get returns the generation it
// saw and Set writes under that generation, so a report built before an
// invalidation is never served after it.
type reportCache interface {
	Get(ctx context.Context, userID int, key string) (value []byte, gen int64, hit bool, err error)
	Set(ctx context.Context, userID int, gen int64, key string, value []byte) error
	Invalidate(ctx context.Context, userID int) error
}

const reportKeyPrefix = "fitness:reports:"

/* ─── Redis ───────────────────────────────────────────────────────────── */

// redisReportCache implements reportCache on Redis. Generations live in
// their own keys without TTL; report entries expire after ttl.
type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisReportCache(client *redis.Client, ttl time.Duration) *redisReportCache {
	return &redisReportCache{client: client, ttl: ttl}
}

// connectRedis parses a redis:// URL and verifies the server is reachable.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *redisReportCache) genKey(userID int) string {
	return reportKeyPrefix + "gen:" + strconv.Itoa(userID)
}

func (r *redisReportCache) generation(ctx context.Context, userID int) (int64, error) {
	gen, err := r.client.Get(ctx, r.genKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *redisReportCache) entryKey(userID int, gen int64, key string) string {
	return fmt.Sprintf("%s%d:%d:%s", reportKeyPrefix, userID, gen, key)
}

func (r *redisReportCache) Get(ctx context.Context, userID int, key string) ([]byte, int64, bool, error) {
	gen, err := r.generation(ctx, userID)
	if err != nil {
		return nil, 0, false, err
	}
	val, err := r.client.Get(ctx, r.entryKey(userID, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}
	return val, gen, true, nil
}

func (r *redisReportCache) Set(ctx context.Context, userID int, gen int64, key string, value []byte) error {
	return r.client.Set(ctx, r.entryKey(userID, gen, key), value, r.ttl).Err()
}

func (r *redisReportCache) Invalidate(ctx context.Context, userID int) error {
	return r.client.Incr(ctx, r.genKey(userID)).Err()
}

/* ─── In-process ──────────────────────────────────────────────────────── */

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// maxMemoryEntriesPerUser bounds one user's share of the in-process cache.
// Report keys embed query params, so the key space is client-controlled.
const maxMemoryEntriesPerUser = 256

// memoryReportCache is the fallback when no Redis is configured. Entries of
// older generations are dropped on Invalidate, expired ones by sweep.
type memoryReportCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	gens    map[int]int64
	entries map[int]map[string]memoryEntry
}

func newMemoryReportCache(ttl time.Duration) *memoryReportCache {
	return &memoryReportCache{
		ttl:     ttl,
		now:     time.Now,
		gens:    make(map[int]int64),
		entries: make(map[int]map[string]memoryEntry),
	}
}

func (m *memoryReportCache) Get(_ context.Context, userID int, key string) ([]byte, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.gens[userID]
	e, ok := m.entries[userID][key]
	if !ok {
		return nil, gen, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries[userID], key)
		return nil, gen, false, nil
	}
	return e.value, gen, true, nil
}

func (m *memoryReportCache) Set(_ context.Context, userID int, gen int64, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gens[userID] {
		return nil
	}
	now := m.now()
	userEntries := m.entries[userID]
	if userEntries == nil {
		userEntries = make(map[string]memoryEntry)
		m.entries[userID] = userEntries
	}
	if _, exists := userEntries[key]; !exists && len(userEntries) >= maxMemoryEntriesPerUser {
		evictOne(userEntries, now)
	}
	userEntries[key] = memoryEntry{value: value, expires: now.Add(m.ttl)}
	return nil
}

// evictOne drops the expired entries of a full user map, or the entry
// closest to expiry when none have expired.
func evictOne(entries map[string]memoryEntry, now time.Time) {
	var oldestKey string
	var oldest time.Time
	removed := false
	for k, e := range entries {
		if now.After(e.expires) {
			delete(entries, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if !removed && oldestKey != "" {
		delete(entries, oldestKey)
	}
}

// sweep removes expired entries and empty user maps.
func (m *memoryReportCache) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for userID, userEntries := range m.entries {
		for k, e := range userEntries {
			if now.After(e.expires) {
				delete(userEntries, k)
			}
		}
		if len(userEntries) == 0 {
			delete(m.entries, userID)
		}
	}
}

// startCleanup runs sweep every interval until done is closed.
func (m *memoryReportCache) startCleanup(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-done:
				return
			}
		}
	}()
}

// size reports the number of stored entries across users.
func (m *memoryReportCache) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, userEntries := range m.entries {
		n += len(userEntries)
	}
	return n
}

func (m *memoryReportCache) Invalidate(_ context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[userID]++
	delete(m.entries, userID)
	return nil
}

/* ─── Helpers ─────────────────────────────────────────────────────────── */

// cachedReport returns the cached report for key, or builds, caches and
// returns it. Cache errors are logged and never fail the request.
func cachedReport[T any](ctx context.Context, h *Handler, userID int, name, key string, build func() (T, error)) (T, error) {
	raw, gen, ok, getErr := h.reports.Get(ctx, userID, key)
	if getErr != nil {
		h.log.Warn("report cache get failed", zap.String("key", key), zap.Error(getErr))
	} else if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			reportCacheLookups.WithLabelValues(name, "hit").Inc()
			return cached, nil
		}
	}
	reportCacheLookups.WithLabelValues(name, "miss").Inc()

	report, err := build()
	if err != nil {
		return report, err
	}
	if getErr != nil {
		return report, nil
	}
	if raw, err := json.Marshal(report); err == nil {
		if err := h.reports.Set(ctx, userID, gen, key, raw); err != nil {
			h.log.Warn("report cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return report, nil
}

// invalidateReports drops cached reports after a write that changed the
// user's summaries or goals.
func (h *Handler) invalidateReports(ctx context.Context, userID int) {
	if err := h.reports.Invalidate(ctx, userID); err != nil {
		h.log.Warn("report cache invalidate failed", zap.Int("user_id", userID), zap.Error(err))
	}
}
