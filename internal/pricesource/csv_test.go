package pricesource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradesim/internal/markethours"
	"tradesim/internal/metrics"
	"tradesim/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `time,open,high,low,close,volume
2020-09-21 09:37:00,1.30,1.31,1.29,1.31,250
2020-09-21 09:36:00,1.28,1.28,1.28,1.28,100
`

func TestReadCSV(t *testing.T) {
	candles, err := ReadCSV(strings.NewReader(sampleCSV), markethours.Eastern)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, 9, first.TS.Hour())
	assert.Equal(t, 36, first.TS.Minute())
	assert.Equal(t, markethours.Eastern, first.TS.Location())
	assert.Equal(t, 1.28, first.Close)
	assert.Equal(t, int64(100), first.Volume)

	second := candles[1]
	assert.Equal(t, 1.30, second.Open)
	assert.Equal(t, 1.31, second.High)
	assert.Equal(t, 1.29, second.Low)
	assert.Equal(t, 1.31, second.Close)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("2020-09-21 09:36:00,1,1,1\n"), markethours.Eastern)
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("2020-09-21 09:36:00,1,x,1,1,1\n"), markethours.Eastern)
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("09/21/2020,1,1,1,1,1\n"), markethours.Eastern)
	assert.Error(t, err)
}

func TestWriteCSV_ReadBack(t *testing.T) {
	in, err := ReadCSV(strings.NewReader(sampleCSV), markethours.Eastern)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in, markethours.Eastern))
	assert.True(t, strings.HasPrefix(buf.String(), "time,open,high,low,close,volume\n2020-09-21 09:36:00,"))

	out, err := ReadCSV(&buf, markethours.Eastern)
	require.NoError(t, err)
	assert.Equal(t, model.Closes(in), model.Closes(out))
	assert.True(t, in[1].TS.Equal(out[1].TS))
}

type countingSource struct {
	calls   int
	candles []model.Candle
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) History(context.Context, Request) ([]model.Candle, error) {
	s.calls++
	return s.candles, nil
}

func TestCSVCache_ReusesSameDay(t *testing.T) {
	upstream := &countingSource{}
	var err error
	upstream.candles, err = ReadCSV(strings.NewReader(sampleCSV), markethours.Eastern)
	require.NoError(t, err)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	cache := NewCSVCache(t.TempDir(), upstream, markethours.Eastern, WithMetrics(m))
	req := Request{Ticker: "aapl", Days: 1, Multiplier: 1, Timespan: "minute"}

	first, err := cache.History(context.Background(), req)
	require.NoError(t, err)
	second, err := cache.History(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, model.Closes(first), model.Closes(second))
	assert.FileExists(t, cache.Path(req))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("csv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("csv")))
}

func TestCSVCache_RefetchesStaleFile(t *testing.T) {
	upstream := &countingSource{}
	dir := t.TempDir()
	cache := NewCSVCache(dir, upstream, markethours.Eastern)
	req := Request{Ticker: "AAPL", Days: 1, Multiplier: 1, Timespan: "minute"}

	_, err := cache.History(context.Background(), req)
	require.NoError(t, err)

	yesterday := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(cache.Path(req), yesterday, yesterday))

	_, err = cache.History(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCSVCache_PathFollowsRequest(t *testing.T) {
	cache := NewCSVCache("cache", &countingSource{}, markethours.Eastern)
	req := Request{Ticker: "aapl", Days: 15, Multiplier: 1, Timespan: "minute",
		End: time.Date(2020, 9, 21, 0, 0, 0, 0, markethours.Eastern)}
	assert.Equal(t, filepath.Join("cache", "AAPL_1-minute_2020-09-06_2020-09-21.csv"), cache.Path(req))
}

func TestCSVCache_DifferentWindowsDoNotShareFile(t *testing.T) {
	upstream := &countingSource{}
	var err error
	upstream.candles, err = ReadCSV(strings.NewReader(sampleCSV), markethours.Eastern)
	require.NoError(t, err)
	cache := NewCSVCache(t.TempDir(), upstream, markethours.Eastern)

	recent := Request{Ticker: "AAPL", Days: 15, Multiplier: 1, Timespan: "minute"}
	older := Request{Ticker: "AAPL", Days: 3, Multiplier: 1, Timespan: "hour",
		End: time.Date(2019, 1, 10, 0, 0, 0, 0, markethours.Eastern)}

	_, err = cache.History(context.Background(), recent)
	require.NoError(t, err)
	_, err = cache.History(context.Background(), older)
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.calls)
	assert.NotEqual(t, cache.Path(recent), cache.Path(older))
	assert.FileExists(t, cache.Path(recent))
	assert.FileExists(t, cache.Path(older))

	_, err = cache.History(context.Background(), older)
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}
