package pricesource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/metrics"
	"tradesim/internal/model"
)

// CSV layout shared by the cache and the import command:
//
//	time,open,high,low,close,volume
//	2020-09-21 09:36:00,1.28,1.28,1.28,1.28,100
const csvTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// ReadCSV parses candles from r. Timestamps carry no zone and are read in loc.
func ReadCSV(r io.Reader, loc *time.Location) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true

	var candles []model.Candle
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if strings.EqualFold(rec[0], "time") || strings.EqualFold(rec[0], "timestamp") {
			continue
		}
		c, err := parseRecord(rec, loc)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return Normalize(candles, loc), nil
}

func parseRecord(rec []string, loc *time.Location) (model.Candle, error) {
	ts, err := time.ParseInLocation(csvTimeLayout, rec[0], loc)
	if err != nil {
		return model.Candle{}, err
	}
	var f [4]float64
	for i := 0; i < 4; i++ {
		if f[i], err = strconv.ParseFloat(rec[i+1], 64); err != nil {
			return model.Candle{}, err
		}
	}
	vol, err := strconv.ParseFloat(rec[5], 64)
	if err != nil {
		return model.Candle{}, err
	}
	// columns: open, high, low, close
	return model.NewCandle(f[0], f[3], f[1], f[2], int64(vol), ts), nil
}

// WriteCSV writes candles to w in ascending order, timestamps in loc.
func WriteCSV(w io.Writer, candles []model.Candle, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		rec := []string{
			c.TS.In(loc).Format(csvTimeLayout),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatInt(c.Volume, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVCache keeps one CSV file per ticker under dir. A file written today is
// served as-is; anything older is refetched from the wrapped source.
type CSVCache struct {
	dir     string
	next    Source
	loc     *time.Location
	now     func() time.Time
	metrics *metrics.Metrics
}

// CacheOption configures a cache decorator.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	metrics *metrics.Metrics
	now     func() time.Time
	ttl     time.Duration
}

// WithMetrics counts cache hits and misses.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(o *cacheOptions) { o.metrics = m }
}

// WithClock overrides the wall clock used for freshness checks.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) { o.now = now }
}

// WithTTL sets how long a cached series stays valid (Redis cache only).
func WithTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) { o.ttl = ttl }
}

func buildOptions(opts []CacheOption) cacheOptions {
	o := cacheOptions{now: time.Now, ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewCSVCache wraps next with an on-disk cache in dir.
func NewCSVCache(dir string, next Source, loc *time.Location, opts ...CacheOption) *CSVCache {
	o := buildOptions(opts)
	return &CSVCache{dir: dir, next: next, loc: loc, now: o.now, metrics: o.metrics}
}

func (c *CSVCache) Name() string { return "csv-cache(" + c.next.Name() + ")" }

// Path returns the cache file for req, named after its ticker, interval
// and window so that different requests never share a file.
func (c *CSVCache) Path(req Request) string {
	name := fmt.Sprintf("%s_%d-%s_%s_%s.csv", strings.ToUpper(req.Ticker), req.Multiplier, req.Timespan,
		req.From().Format("2006-01-02"), req.To().Format("2006-01-02"))
	return filepath.Join(c.dir, name)
}

func (c *CSVCache) History(ctx context.Context, req Request) ([]model.Candle, error) {
	path := c.Path(req)
	if candles, ok := c.readFresh(path); ok {
		c.count(true)
		return candles, nil
	}
	c.count(false)

	log.Printf("[csv-cache] requesting %s from %s", req.Ticker, c.next.Name())
	candles, err := c.next.History(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.write(path, candles); err != nil {
		// The fetch succeeded; a cache write failure only costs a refetch.
		log.Printf("[csv-cache] write %s: %v", path, err)
	}
	return candles, nil
}

func (c *CSVCache) readFresh(path string) ([]model.Candle, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	now := c.now().In(c.loc)
	mod := info.ModTime().In(c.loc)
	if mod.Year() != now.Year() || mod.YearDay() != now.YearDay() {
		return nil, false
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	candles, err := ReadCSV(f, c.loc)
	if err != nil {
		log.Printf("[csv-cache] discarding unreadable %s: %v", path, err)
		return nil, false
	}
	return candles, true
}

func (c *CSVCache) write(path string, candles []model.Candle) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, candles, c.loc); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (c *CSVCache) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("csv").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("csv").Inc()
	}
}
