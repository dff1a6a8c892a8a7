// Package backtest wires a price source, a strategy and a fresh broker and
// account together for each ticker, and runs tickers in parallel.
//
// Every ticker gets its own broker and account, so per-ticker runs share no
// mutable state and can run on separate goroutines.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tradesim/internal/account"
	"tradesim/internal/broker"
	"tradesim/internal/execution"
	"tradesim/internal/logger"
	"tradesim/internal/metrics"
	"tradesim/internal/pricesource"
	"tradesim/internal/report"
	"tradesim/internal/strategy"
)

// Mode selects the broker model.
type Mode string

const (
	// ModeBacktest fills against an Immediate broker: no fees, instant cash.
	ModeBacktest Mode = "backtest"
	// ModeSim fills against a Delayed broker: commission and T+2 settlement.
	ModeSim Mode = "sim"
)

// ParseMode accepts "backtest" or "sim", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBacktest, ModeSim:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Config holds the plain numbers a run needs.
type Config struct {
	Mode        Mode
	Capital     float64
	Commission  float64 // sim mode only
	Days        int
	Multiplier  int
	Timespan    string
	End         time.Time // zero means today
	Concurrency int
}

// Validate rejects configs no run could use.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Capital <= 0 {
		return fmt.Errorf("capital must be positive, got %v", c.Capital)
	}
	if c.Commission < 0 {
		return fmt.Errorf("commission must not be negative, got %v", c.Commission)
	}
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", c.Days)
	}
	if c.Multiplier <= 0 || c.Timespan == "" {
		return fmt.Errorf("bad interval %d:%s", c.Multiplier, c.Timespan)
	}
	return nil
}

// FillRecorder persists fills. *execution.Journal satisfies it.
type FillRecorder interface {
	RecordFill(execution.Fill) error
}

// Result is the outcome of one ticker.
type Result struct {
	Ticker    string
	Candles   int
	Positions []account.Position
	Summary   report.Summary
	Duration  time.Duration
}

// Runner executes strategy runs.
type Runner struct {
	cfg     Config
	source  pricesource.Source
	factory strategy.Factory
	journal FillRecorder
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournal records every fill.
func WithJournal(j FillRecorder) Option {
	return func(r *Runner) { r.journal = j }
}

// WithMetrics exports run, fill and rejection metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner validates cfg and builds a runner.
func NewRunner(cfg Config, src pricesource.Source, factory strategy.Factory, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest config: %w", err)
	}
	if src == nil || factory == nil {
		return nil, errors.New("backtest: source and strategy factory are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	r := &Runner{cfg: cfg, source: src, factory: factory, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewBroker returns a fresh broker for the configured mode.
func (r *Runner) NewBroker() broker.Broker {
	if r.cfg.Mode == ModeSim {
		return broker.NewDelayed(r.cfg.Capital, broker.WithCommission(r.cfg.Commission))
	}
	return broker.NewImmediate(r.cfg.Capital)
}

func (r *Runner) request(ticker string) pricesource.Request {
	return pricesource.Request{
		Ticker:     ticker,
		Days:       r.cfg.Days,
		Multiplier: r.cfg.Multiplier,
		Timespan:   r.cfg.Timespan,
		End:        r.cfg.End,
	}
}

// RunTicker fetches ticker's history and runs one fresh strategy over it.
func (r *Runner) RunTicker(ctx context.Context, ticker string) (Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx, r.log).With(slog.String("ticker", ticker), slog.String("mode", string(r.cfg.Mode)))

	candles, err := r.source.History(ctx, r.request(ticker))
	if err != nil {
		return Result{}, fmt.Errorf("history %s: %w", ticker, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	strat, err := r.factory(ticker)
	if err != nil {
		return Result{}, err
	}
	acct := account.New(r.NewBroker(), r.accountOptions(ctx, ticker, strat.Name(), log)...)

	log.Info("run started", slog.String("strategy", strat.Name()), slog.Int("candles", len(candles)))
	if err := strat.Execute(candles, acct); err != nil {
		return Result{}, err
	}

	// Capital(t) at the last bar rolls any proceeds due by then.
	cashAt := time.Now()
	if n := len(candles); n > 0 {
		cashAt = candles[n-1].TS
	}
	positions := acct.Positions()
	res := Result{
		Ticker:    ticker,
		Candles:   len(candles),
		Positions: positions,
		Summary:   report.Summarize(ticker, positions, acct.TotalCash(cashAt)),
		Duration:  time.Since(start),
	}

	if r.metrics != nil {
		r.metrics.CandlesProcessed.Add(float64(len(candles)))
		r.metrics.EndingCash.WithLabelValues(ticker).Set(res.Summary.EndingCash)
		r.metrics.NetReturn.WithLabelValues(ticker).Set(res.Summary.Net)
	}
	log.Info("run finished",
		slog.Int("wins", res.Summary.Wins),
		slog.Int("losses", res.Summary.Losses),
		slog.Float64("net", res.Summary.Net),
		slog.Float64("ending_cash", res.Summary.EndingCash),
		slog.Duration("elapsed", res.Duration),
	)
	return res, nil
}

func (r *Runner) accountOptions(ctx context.Context, ticker, strategyName string, log *slog.Logger) []account.Option {
	runID := logger.RunID(ctx)
	return []account.Option{
		account.WithLogger(log),
		account.WithRejectionObserver(func(_ string, err error) {
			if r.metrics != nil {
				r.metrics.RejectionsTotal.WithLabelValues(broker.Reason(err)).Inc()
			}
		}),
		account.WithFillObserver(func(side string, p account.Position, price float64, t time.Time) {
			if r.metrics != nil {
				r.metrics.FillsTotal.WithLabelValues(side).Inc()
			}
			if r.journal == nil {
				return
			}
			fill := execution.Fill{
				RunID:    runID,
				Mode:     string(r.cfg.Mode),
				Strategy: strategyName,
				Side:     side,
				Ticker:   ticker,
				Shares:   p.Shares,
				Price:    price,
				FilledAt: t,
			}
			if side == account.SideSell {
				fill.Return = p.TotalReturn()
			}
			if err := r.journal.RecordFill(fill); err != nil {
				log.Warn("journal write failed", slog.String("error", err.Error()))
			}
		}),
	}
}

// RunAll runs every ticker, at most Concurrency at a time. Results come
// back in the order tickers were given. The first failure cancels the
// remaining runs.
func (r *Runner) RunAll(ctx context.Context, tickers []string) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			res, err := r.RunTicker(gctx, ticker)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()

	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.RunsTotal.WithLabelValues(string(r.cfg.Mode), status).Inc()
		r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Summaries extracts the per-ticker summaries from results.
func Summaries(results []Result) []report.Summary {
	out := make([]report.Summary, len(results))
	for i, res := range results {
		out[i] = res.Summary
	}
	return out
}
