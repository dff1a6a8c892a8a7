// Package redis caches fetched candle series in Redis so repeated runs
// against the same window skip the remote provider.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tradesim/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const keyPrefix = "tradesim:bars:"

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// BarCache stores candle series as JSON blobs under expiring keys.
type BarCache struct {
	client  *goredis.Client
	breaker *Breaker
}

// New connects to Redis and pings it.
func New(cfg Config) (*BarCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	b := NewBreaker(5, 10*time.Second)
	b.OnStateChange = func(from, to State) {
		log.Printf("[redis] breaker %s -> %s", from, to)
	}
	return &BarCache{client: client, breaker: b}, nil
}

// Client returns the underlying client for health checks.
func (c *BarCache) Client() *goredis.Client { return c.client }

// Key builds the cache key for one request window.
func Key(ticker, interval string, from, to time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", keyPrefix, ticker, interval,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Get returns the cached series. ok is false on a miss.
func (c *BarCache) Get(ctx context.Context, key string) (candles []model.Candle, ok bool, err error) {
	var raw []byte
	err = c.breaker.Do(func() error {
		b, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil || raw == nil {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, &candles); err != nil {
		return nil, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return candles, true, nil
}

// Set stores candles under key for ttl.
func (c *BarCache) Set(ctx context.Context, key string, candles []model.Candle, ttl time.Duration) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	return c.breaker.Do(func() error {
		return c.client.Set(ctx, key, data, ttl).Err()
	})
}

// Close closes the connection.
func (c *BarCache) Close() error {
	return c.client.Close()
}
