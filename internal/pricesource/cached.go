package pricesource

import (
	"context"
	"log"
	"time"

	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/store/redis"
	"tradesim/internal/store/sqlite"
)

// RedisCache fronts a Source with a Redis cache keyed by request window.
// Redis failures degrade to a pass-through.
type RedisCache struct {
	cache   *redis.BarCache
	next    Source
	loc     *time.Location
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisCache wraps next.
func NewRedisCache(cache *redis.BarCache, next Source, loc *time.Location, opts ...CacheOption) *RedisCache {
	o := buildOptions(opts)
	return &RedisCache{cache: cache, next: next, loc: loc, ttl: o.ttl, metrics: o.metrics}
}

func (c *RedisCache) Name() string { return "redis-cache(" + c.next.Name() + ")" }

func (c *RedisCache) History(ctx context.Context, req Request) ([]model.Candle, error) {
	key := redis.Key(req.Ticker, req.Interval(), req.From(), req.To())
	candles, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[redis-cache] get %s: %v", key, err)
	}
	if ok {
		c.count(true)
		return Normalize(candles, c.loc), nil
	}
	c.count(false)

	candles, err = c.next.History(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, candles, c.ttl); err != nil {
		log.Printf("[redis-cache] set %s: %v", key, err)
	}
	return candles, nil
}

func (c *RedisCache) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	}
}

// Store serves history out of the local SQLite bar store, for series
// loaded with the import command.
type Store struct {
	store *sqlite.BarStore
	loc   *time.Location
}

// NewStore wraps a bar store.
func NewStore(store *sqlite.BarStore, loc *time.Location) *Store {
	return &Store{store: store, loc: loc}
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) History(ctx context.Context, req Request) ([]model.Candle, error) {
	// Without an explicit end the whole imported series is replayed.
	var from, to time.Time
	if !req.End.IsZero() {
		from, to = req.From(), req.To().AddDate(0, 0, 1)
	}
	candles, err := s.store.ReadBars(ctx, req.Ticker, from, to)
	if err != nil {
		return nil, err
	}
	return Normalize(candles, s.loc), nil
}

// Timed records fetch latency for the wrapped source.
type Timed struct {
	next    Source
	metrics *metrics.Metrics
}

// NewTimed wraps next. A nil m disables recording.
func NewTimed(next Source, m *metrics.Metrics) *Timed {
	return &Timed{next: next, metrics: m}
}

func (t *Timed) Name() string { return t.next.Name() }

func (t *Timed) History(ctx context.Context, req Request) ([]model.Candle, error) {
	start := time.Now()
	candles, err := t.next.History(ctx, req)
	if t.metrics != nil {
		t.metrics.SourceFetchDur.WithLabelValues(t.next.Name()).Observe(time.Since(start).Seconds())
	}
	return candles, err
}

// Static serves a fixed series regardless of the request window.
type Static struct {
	Label   string
	Candles map[string][]model.Candle
}

func (s *Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s *Static) History(_ context.Context, req Request) ([]model.Candle, error) {
	return s.Candles[req.Ticker], nil
}
