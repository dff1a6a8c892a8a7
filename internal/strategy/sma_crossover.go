package strategy

import (
	"errors"
	"fmt"
	"log/slog"

	"tradesim/internal/account"
	"tradesim/internal/broker"
	"tradesim/internal/indicator"
	"tradesim/internal/model"
)

// SMACrossover buys the first bullish close back above the moving average
// after price has dipped below it, and sells on a bearish close below it.
//
// The first Period() candles warm up the average. The strategy starts armed
// if the last warm-up close is below the warm-up average. For every later
// candle, in order:
//
//  1. feed the close into the average
//  2. exit: close < avg, bearish bar, position open
//  3. else entry: close > avg, bullish bar, armed → buy max shares, disarm
//  4. else re-arm: close < avg, no position open
//  5. force an end-of-day close at or after 15:55 while the session is
//     open; sells outside the session are rejected and the position held
type SMACrossover struct {
	name   string
	ticker string
	avg    indicator.Indicator
	log    *slog.Logger

	armed bool
	done  bool
}

// Option configures an SMACrossover.
type Option func(*SMACrossover)

// WithLogger sets the strategy logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SMACrossover) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSMACrossover creates the strategy for ticker over a fresh, unfed average.
func NewSMACrossover(ticker string, avg indicator.Indicator, opts ...Option) *SMACrossover {
	s := &SMACrossover{
		name:   "SMA_Crossover",
		ticker: ticker,
		avg:    avg,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSMACrossoverFactory returns a Factory building crossovers over an
// indicator of the given kind and period.
func NewSMACrossoverFactory(kind string, period int, opts ...Option) Factory {
	return func(ticker string) (Strategy, error) {
		avg, err := indicator.New(kind, period)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", ticker, err)
		}
		return NewSMACrossover(ticker, avg, opts...), nil
	}
}

func (s *SMACrossover) Name() string {
	return s.name
}

// Armed reports whether the strategy is waiting for an entry.
func (s *SMACrossover) Armed() bool { return s.armed }

func (s *SMACrossover) Execute(candles []model.Candle, acct *account.Account) error {
	if s.done {
		return ErrConsumed
	}
	s.done = true

	period := s.avg.Period()
	if len(candles) < period {
		s.log.Info("not enough candles to warm up",
			slog.String("ticker", s.ticker),
			slog.String("indicator", s.avg.Name()),
			slog.Int("candles", len(candles)),
		)
		return nil
	}

	warmup := candles[:period]
	for _, c := range warmup {
		s.avg.Add(c.Close)
	}
	if v, ok := s.avg.Value(); ok && warmup[period-1].Close < v {
		s.armed = true
	}

	for _, c := range candles[period:] {
		if err := s.onCandle(c, acct); err != nil {
			return fmt.Errorf("%s %s at %s: %w", s.name, s.ticker, c.TS.Format("2006-01-02 15:04:05"), err)
		}
	}
	return nil
}

func (s *SMACrossover) onCandle(c model.Candle, acct *account.Account) error {
	s.avg.Add(c.Close)

	if avg, ok := s.avg.Value(); ok {
		switch {
		case c.Close < avg && c.Bearish() && acct.IsPositionOpen():
			// An out-of-session exit is rejected by the account; keep holding.
			if err := acct.ClosePosition(s.ticker, c.Close, c.TS); err != nil && !errors.Is(err, broker.ErrMarketClosed) {
				return err
			}
		case c.Close > avg && c.Bullish() && s.armed:
			shares := acct.MaxShares(c.Close, c.TS)
			// Rejections are logged by the account; the run carries on.
			_ = acct.OpenPosition(s.ticker, c.Close, shares, c.TS)
			s.armed = false
		case c.Close < avg && !acct.IsPositionOpen():
			s.armed = true
		}
	}

	return acct.ClosePositionForDay(s.ticker, c)
}
