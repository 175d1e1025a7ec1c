package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/compress"
	"github.com/skyaware/skyaware/internal/resilience"
)

// LatestKey holds the full latest snapshot blob.
const LatestKey = "latest_aqi_data"

// PointKey returns the per-location cache key for a coordinate.
func PointKey(lat, lon float64) string {
	return fmt.Sprintf("aqi_%.4f_%.4f", lat, lon)
}

// RedisCacheConfig holds configuration for the Redis snapshot cache.
type RedisCacheConfig struct {
	Client redis.UniversalClient
	Logger zerolog.Logger

	// Compress stores the latest blob as zstd. Reads accept both forms.
	Compress bool

	// BatchSize is how many per-location SETs go into one pipeline (default: 1000).
	BatchSize int

	// Breaker overrides the fast-fail breaker settings.
	Breaker *resilience.BreakerConfig

	// Registry, when set, exposes the breaker in dependency health.
	Registry *resilience.Registry
}

// RedisCache is the fast-path snapshot cache. Every call goes through a
// circuit breaker so a dead Redis costs one fast failure per request.
type RedisCache struct {
	client    redis.UniversalClient
	logger    zerolog.Logger
	compress  bool
	batchSize int
	breaker   *gobreaker.CircuitBreaker[[]byte]
	registry  *resilience.Registry
}

var _ airquality.SnapshotCache = (*RedisCache)(nil)

// RedisName is the cache's name in the dependency registry.
const RedisName = "redis"

// NewRedisCache creates a new Redis-backed snapshot cache.
func NewRedisCache(cfg RedisCacheConfig) *RedisCache {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	bcfg := resilience.FastFailBreakerConfig(RedisName)
	if cfg.Breaker != nil {
		bcfg = *cfg.Breaker
	}
	logger := cfg.Logger
	bcfg.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("cache circuit breaker state changed")
	}

	c := &RedisCache{
		client:    cfg.Client,
		logger:    cfg.Logger,
		compress:  cfg.Compress,
		batchSize: batchSize,
		breaker:   resilience.NewBreaker[[]byte](bcfg),
		registry:  cfg.Registry,
	}
	if c.registry != nil {
		c.registry.Register(RedisName, c)
	}
	return c
}

// GetLatest returns the cached latest snapshot or airquality.ErrCacheMiss.
func (c *RedisCache) GetLatest(ctx context.Context) (*airquality.Snapshot, error) {
	raw, err := c.get(ctx, LatestKey)
	if err != nil {
		return nil, err
	}

	data, err := compress.MaybeDecode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", airquality.ErrCacheUnavailable, err)
	}

	var snap airquality.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode latest: %w", airquality.ErrCacheUnavailable, err)
	}
	return &snap, nil
}

// SetLatest replaces the latest blob with a single SET.
func (c *RedisCache) SetLatest(ctx context.Context, snap *airquality.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal latest: %w", err)
	}
	if c.compress {
		data = compress.Encode(data)
	}

	return c.exec(ctx, func() error {
		return c.client.Set(ctx, LatestKey, data, ttl).Err()
	})
}

// SetPoints writes one entry per point, pipelined in batches.
func (c *RedisCache) SetPoints(ctx context.Context, points []airquality.AQIPoint, ttl time.Duration) error {
	for start := 0; start < len(points); start += c.batchSize {
		batch := points[start:min(start+c.batchSize, len(points))]

		err := c.exec(ctx, func() error {
			_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for i := range batch {
					data, err := json.Marshal(&batch[i])
					if err != nil {
						return err
					}
					pipe.Set(ctx, PointKey(batch[i].Latitude, batch[i].Longitude), data, ttl)
				}
				return nil
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("batch at %d: %w", start, err)
		}
	}
	return nil
}

// GetPoint returns the per-location entry for (lat, lon).
func (c *RedisCache) GetPoint(ctx context.Context, lat, lon float64) (*airquality.AQIPoint, error) {
	raw, err := c.get(ctx, PointKey(lat, lon))
	if err != nil {
		return nil, err
	}

	var p airquality.AQIPoint
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode point: %w", airquality.ErrCacheUnavailable, err)
	}
	return &p, nil
}

// Ping checks connectivity, bypassing the breaker.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// BreakerState returns the breaker state.
func (c *RedisCache) BreakerState() gobreaker.State { return c.breaker.State() }

// BreakerCounts returns the breaker counters.
func (c *RedisCache) BreakerCounts() gobreaker.Counts { return c.breaker.Counts() }

// get reads key. A missing key is not a breaker failure.
func (c *RedisCache) get(ctx context.Context, key string) ([]byte, error) {
	miss := false
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		b, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		c.record(err)
		return nil, fmt.Errorf("%w: get %s: %w", airquality.ErrCacheUnavailable, key, err)
	}
	c.record(nil)
	if miss {
		return nil, airquality.ErrCacheMiss
	}
	return raw, nil
}

func (c *RedisCache) exec(ctx context.Context, fn func() error) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fn()
	})
	c.record(err)
	if err != nil {
		return fmt.Errorf("%w: %w", airquality.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(RedisName, err)
		return
	}
	c.registry.RecordSuccess(RedisName)
}

// NewRedisClient builds a go-redis client with short timeouts suited to a
// best-effort cache.
func NewRedisClient(addr, password string, db int, dialTimeout, ioTimeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})
}
