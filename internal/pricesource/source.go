// Package pricesource supplies materialized, time-ordered candle sequences
// to the engine: remote aggregates, on-disk CSV caches and a Redis cache.
//
// Every Source returns candles in ascending timestamp order, zoned to the
// exchange timezone.
package pricesource

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/model"
)

// Request describes one history fetch.
type Request struct {
	Ticker     string
	Days       int    // lookback in calendar days ending at End
	Multiplier int    // bar size multiplier, e.g. 1
	Timespan   string // bar size unit, e.g. "minute"
	End        time.Time
}

// From returns the first calendar day covered by the request.
func (r Request) From() time.Time {
	return r.end().AddDate(0, 0, -r.Days)
}

// To returns the last calendar day covered by the request.
func (r Request) To() time.Time {
	return r.end()
}

func (r Request) end() time.Time {
	end := r.End
	if end.IsZero() {
		end = time.Now()
	}
	return time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
}

// Interval renders the bar size as "multiplier:timespan".
func (r Request) Interval() string {
	return fmt.Sprintf("%d:%s", r.Multiplier, r.Timespan)
}

// Source fetches candle history for one ticker.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// History returns candles in ascending timestamp order.
	History(ctx context.Context, req Request) ([]model.Candle, error)
}

// ParseInterval parses "1:minute" style bar sizes.
func ParseInterval(s string) (int, string, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("interval %q: want multiplier:timespan", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return 0, "", fmt.Errorf("interval %q: bad multiplier", s)
	}
	span := strings.ToLower(strings.TrimSpace(parts[1]))
	switch span {
	case "minute", "hour", "day", "week", "month":
	default:
		return 0, "", fmt.Errorf("interval %q: unknown timespan %q", s, span)
	}
	return n, span, nil
}

// Normalize zones candles to loc and sorts them by timestamp, dropping
// exact-timestamp duplicates (the later one wins).
func Normalize(candles []model.Candle, loc *time.Location) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.In(loc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })

	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].TS.Equal(c.TS) {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}
