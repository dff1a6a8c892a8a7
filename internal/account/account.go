// Package account owns the position lifecycle for one simulated account.
//
// An Account holds at most one open position. Closed positions move to an
// append-only history kept for reporting. The Broker passed to New belongs
// to the account for its whole life.
package account

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/broker"
	"tradesim/internal/markethours"
	"tradesim/internal/model"
)

// RejectionObserver is told about every order the account declines.
type RejectionObserver func(ticker string, err error)

// FillObserver is told about every accepted buy and sell.
type FillObserver func(side string, p Position, price float64, t time.Time)

// Sides passed to a FillObserver.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Account tracks the open position, closed history and the broker.
type Account struct {
	broker  broker.Broker
	current *Position
	history []Position

	log      *slog.Logger
	onReject RejectionObserver
	onFill   FillObserver
}

// Option configures an Account.
type Option func(*Account)

// WithLogger sets the logger used for fills and rejections.
func WithLogger(l *slog.Logger) Option {
	return func(a *Account) {
		if l != nil {
			a.log = l
		}
	}
}

// WithRejectionObserver registers a callback for declined orders.
func WithRejectionObserver(fn RejectionObserver) Option {
	return func(a *Account) { a.onReject = fn }
}

// WithFillObserver registers a callback for accepted orders.
func WithFillObserver(fn FillObserver) Option {
	return func(a *Account) { a.onFill = fn }
}

// New creates an account that exclusively owns b.
func New(b broker.Broker, opts ...Option) *Account {
	a := &Account{
		broker: b,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Broker returns the account's broker.
func (a *Account) Broker() broker.Broker { return a.broker }

// IsPositionOpen reports whether a position is currently open.
func (a *Account) IsPositionOpen() bool { return a.current != nil }

// CurrentPosition returns a copy of the open position, if any.
func (a *Account) CurrentPosition() (Position, bool) {
	if a.current == nil {
		return Position{}, false
	}
	return *a.current, true
}

// History returns the closed positions in the order they were closed.
func (a *Account) History() []Position {
	cp := make([]Position, len(a.history))
	copy(cp, a.history)
	return cp
}

// Positions returns every position: closed history first, then the open
// position if there is one.
func (a *Account) Positions() []Position {
	cp := a.History()
	if a.current != nil {
		cp = append(cp, *a.current)
	}
	return cp
}

// MaxShares returns the whole number of shares capital buys at price.
func (a *Account) MaxShares(price float64, t time.Time) int {
	if price <= 0 {
		return 0
	}
	capital := decimal.NewFromFloat(a.broker.Capital(t))
	return int(capital.Div(decimal.NewFromFloat(price)).Floor().IntPart())
}

// TotalCash returns settled capital plus unsettled proceeds as of t.
func (a *Account) TotalCash(t time.Time) float64 {
	// Capital first: it may settle pending cash, which would otherwise be
	// counted twice.
	capital := decimal.NewFromFloat(a.broker.Capital(t))
	return capital.Add(decimal.NewFromFloat(a.broker.UnsettledCash())).InexactFloat64()
}

// OpenPosition buys shares of ticker at bid. A rejected order leaves the
// account untouched; the reason is logged, passed to the rejection observer
// and returned. Rejections are expected market conditions, not failures.
func (a *Account) OpenPosition(ticker string, bid float64, shares int, t time.Time) error {
	var err error
	switch {
	case a.current != nil:
		err = fmt.Errorf("open %s: %w (%s)", ticker, broker.ErrPositionOpen, a.current.Ticker)
	case shares <= 0:
		err = fmt.Errorf("open %s: %w", ticker, broker.ErrZeroOrNegativeShares)
	case !a.broker.IsMarketOpen(t):
		err = fmt.Errorf("open %s at %s: %w", ticker, t.Format(time.RFC3339), broker.ErrMarketClosed)
	default:
		_, err = a.broker.BuyOrder(ticker, shares, bid, t)
	}
	if err != nil {
		a.reject(ticker, bid, shares, t, err)
		return err
	}

	p := newPosition(ticker, shares, bid, t)
	a.current = &p
	a.log.Info("position opened",
		slog.String("ticker", ticker),
		slog.Int("shares", shares),
		slog.Float64("price", bid),
		slog.Time("time", t),
	)
	if a.onFill != nil {
		a.onFill(SideBuy, p, bid, t)
	}
	return nil
}

// ClosePosition sells the whole open position at ask. Calling it with no
// open position for ticker is a caller bug and returns ErrNoOpenPosition.
// Outside the session the sell is rejected with ErrMarketClosed and the
// position stays open.
func (a *Account) ClosePosition(ticker string, ask float64, t time.Time) error {
	if a.current == nil || a.current.Ticker != ticker {
		return fmt.Errorf("close %s: %w", ticker, broker.ErrNoOpenPosition)
	}
	if !a.broker.IsMarketOpen(t) {
		err := fmt.Errorf("close %s at %s: %w", ticker, t.Format(time.RFC3339), broker.ErrMarketClosed)
		a.reject(ticker, ask, a.current.Shares, t, err)
		return err
	}

	p := *a.current
	a.current = nil
	a.broker.SellOrder(ticker, p.Shares, ask, t)
	p.close(ask, t)
	a.history = append(a.history, p)

	a.log.Info("position closed",
		slog.String("ticker", ticker),
		slog.Int("shares", p.Shares),
		slog.Float64("price", ask),
		slog.Float64("return", p.TotalReturn()),
		slog.Time("time", t),
	)
	if a.onFill != nil {
		a.onFill(SideSell, p, ask, t)
	}
	return nil
}

// ClosePositionForDay liquidates the open position at the candle's close
// once the candle is at or past the end-of-day cutoff. It does nothing when
// no position is open or the cutoff has not been reached. A cutoff bar that
// falls outside the session is rejected and the position carries over to
// the next in-session cutoff.
func (a *Account) ClosePositionForDay(ticker string, c model.Candle) error {
	if a.current == nil || !markethours.AtOrAfterDayClose(c.TS) {
		return nil
	}
	err := a.ClosePosition(ticker, c.Close, c.TS)
	if errors.Is(err, broker.ErrMarketClosed) {
		return nil
	}
	return err
}

func (a *Account) reject(ticker string, price float64, shares int, t time.Time, err error) {
	a.log.Info("order rejected",
		slog.String("ticker", ticker),
		slog.String("reason", broker.Reason(err)),
		slog.Int("shares", shares),
		slog.Float64("price", price),
		slog.Time("time", t),
		slog.String("error", err.Error()),
	)
	if a.onReject != nil {
		a.onReject(ticker, err)
	}
}
