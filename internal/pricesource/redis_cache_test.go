package pricesource

import (
	"context"
	"strings"
	"testing"
	"time"

	"tradesim/internal/markethours"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/store/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisFixture(t *testing.T) (*countingSource, *miniredis.Miniredis, *redis.BarCache) {
	t.Helper()
	upstream := &countingSource{}
	var err error
	upstream.candles, err = ReadCSV(strings.NewReader(sampleCSV), markethours.Eastern)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	bc, err := redis.New(redis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { bc.Close() })
	return upstream, mr, bc
}

var redisReq = Request{Ticker: "AAPL", Days: 15, Multiplier: 1, Timespan: "minute",
	End: time.Date(2020, 9, 21, 0, 0, 0, 0, markethours.Eastern)}

func TestRedisCache_MissThenHit(t *testing.T) {
	upstream, mr, bc := newRedisFixture(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	src := NewRedisCache(bc, upstream, markethours.Eastern, WithMetrics(m), WithTTL(time.Hour))

	first, err := src.History(context.Background(), redisReq)
	require.NoError(t, err)
	second, err := src.History(context.Background(), redisReq)
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, model.Closes(first), model.Closes(second))
	assert.Equal(t, markethours.Eastern, second[0].TS.Location())
	assert.True(t, first[0].TS.Equal(second[0].TS))

	key := redis.Key("AAPL", "1:minute", redisReq.From(), redisReq.To())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("redis")))
}

func TestRedisCache_KeyedByWindow(t *testing.T) {
	upstream, _, bc := newRedisFixture(t)
	src := NewRedisCache(bc, upstream, markethours.Eastern)

	older := redisReq
	older.Days = 3
	older.Timespan = "hour"
	older.End = time.Date(2019, 1, 10, 0, 0, 0, 0, markethours.Eastern)

	_, err := src.History(context.Background(), redisReq)
	require.NoError(t, err)
	_, err = src.History(context.Background(), older)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestRedisCache_FallsThroughWhenRedisFails(t *testing.T) {
	upstream, mr, bc := newRedisFixture(t)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	src := NewRedisCache(bc, upstream, markethours.Eastern, WithMetrics(m))
	mr.SetError("ERR server unavailable")

	for i := 0; i < 2; i++ {
		got, err := src.History(context.Background(), redisReq)
		require.NoError(t, err)
		assert.Len(t, got, len(upstream.candles))
	}
	assert.Equal(t, 2, upstream.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("redis")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("redis")))
}
