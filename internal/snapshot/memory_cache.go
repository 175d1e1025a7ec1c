package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/skyaware/skyaware/internal/airquality"
)

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e memoryEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-memory SnapshotCache with per-entry expiry.
// This is intended for testing and local runs. Production should use RedisCache.
type MemoryCache struct {
	mu     sync.RWMutex
	now    func() time.Time
	latest *memoryEntry[*airquality.Snapshot]
	points map[string]memoryEntry[airquality.AQIPoint]
	err    error
}

var _ airquality.SnapshotCache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		now:    time.Now,
		points: make(map[string]memoryEntry[airquality.AQIPoint]),
	}
}

// SetClock replaces the clock used for expiry.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetError makes every subsequent call fail with err. Pass nil to recover.
func (c *MemoryCache) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// GetLatest returns the latest snapshot or airquality.ErrCacheMiss.
func (c *MemoryCache) GetLatest(_ context.Context) (*airquality.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.latest == nil || c.latest.expired(c.now()) {
		return nil, airquality.ErrCacheMiss
	}
	return c.latest.value, nil
}

// SetLatest replaces the latest snapshot.
func (c *MemoryCache) SetLatest(_ context.Context, snap *airquality.Snapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.latest = &memoryEntry[*airquality.Snapshot]{value: snap, expiresAt: c.expiry(ttl)}
	return nil
}

// SetPoints writes one entry per point.
func (c *MemoryCache) SetPoints(_ context.Context, points []airquality.AQIPoint, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	exp := c.expiry(ttl)
	for _, p := range points {
		c.points[PointKey(p.Latitude, p.Longitude)] = memoryEntry[airquality.AQIPoint]{value: p, expiresAt: exp}
	}
	return nil
}

// GetPoint returns the entry for (lat, lon) or airquality.ErrCacheMiss.
func (c *MemoryCache) GetPoint(_ context.Context, lat, lon float64) (*airquality.AQIPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	e, ok := c.points[PointKey(lat, lon)]
	if !ok || e.expired(c.now()) {
		return nil, airquality.ErrCacheMiss
	}
	p := e.value
	return &p, nil
}

// Ping reports the injected error, if any.
func (c *MemoryCache) Ping(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// PointCount returns the number of per-location entries, expired or not.
func (c *MemoryCache) PointCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}
