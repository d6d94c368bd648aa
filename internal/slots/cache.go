package slots

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farmacia-suite/citas-client/internal/farmacia"
)

const slotKeyPrefix = "citas:slots:"

// Cache stores resolved slot sets briefly, keyed by date. Misses and
// backend failures both read as "not cached"; the cache is never allowed to
// turn into an error source for the resolver.
type Cache interface {
	Get(ctx context.Context, day time.Time) ([]farmacia.Slot, bool)
	Set(ctx context.Context, day time.Time, slots []farmacia.Slot)
	Invalidate(ctx context.Context, day time.Time)
}

type slotEntry struct {
	Start     string `json:"start"` // "15:04", clinic time
	Available bool   `json:"available"`
}

// RedisCache is a short-TTL Redis-backed Cache.
type RedisCache struct {
	client *redis.Client
	loc    *time.Location
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed slot cache.
func NewRedisCache(client *redis.Client, loc *time.Location, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("slots: redis client cannot be nil")
	}
	if loc == nil {
		loc = time.Local
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, loc: loc, ttl: ttl}
}

func slotKey(day time.Time) string {
	return slotKeyPrefix + day.Format("2006-01-02")
}

func (c *RedisCache) Get(ctx context.Context, day time.Time) ([]farmacia.Slot, bool) {
	raw, err := c.client.Get(ctx, slotKey(day)).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []slotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	out := make([]farmacia.Slot, 0, len(entries))
	for _, e := range entries {
		hm, err := time.Parse("15:04", e.Start)
		if err != nil {
			return nil, false
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, c.loc)
		out = append(out, farmacia.Slot{Start: start, Available: e.Available})
	}
	return out, true
}

func (c *RedisCache) Set(ctx context.Context, day time.Time, slots []farmacia.Slot) {
	entries := make([]slotEntry, 0, len(slots))
	for _, s := range slots {
		entries = append(entries, slotEntry{Start: s.Start.In(c.loc).Format("15:04"), Available: s.Available})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, slotKey(day), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, day time.Time) {
	_ = c.client.Del(ctx, slotKey(day)).Err()
}
