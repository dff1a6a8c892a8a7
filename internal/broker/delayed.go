package broker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/markethours"
)

// Delayed models a cash account: each sale is charged a flat commission and
// its proceeds sit in unsettled cash until the settlement date, during which
// no new buy is accepted.
//
// Invariant: unsettled > 0 implies settleDate is set.
type Delayed struct {
	capital    decimal.Decimal
	unsettled  decimal.Decimal
	settleDate time.Time // zero when nothing is pending
	commission decimal.Decimal
}

// DelayedOption configures a Delayed broker.
type DelayedOption func(*Delayed)

// WithCommission overrides the flat per-sell commission.
func WithCommission(c float64) DelayedOption {
	return func(b *Delayed) { b.commission = decimal.NewFromFloat(c) }
}

// NewDelayed creates a delayed-settlement broker with capital in settled funds.
func NewDelayed(capital float64, opts ...DelayedOption) *Delayed {
	b := &Delayed{
		capital:    decimal.NewFromFloat(capital),
		commission: decimal.NewFromFloat(Commission),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Delayed) Capital(at time.Time) float64 {
	b.settle(at)
	return b.capital.InexactFloat64()
}

func (b *Delayed) UnsettledCash() float64 { return b.unsettled.InexactFloat64() }

// SettleDate returns the pending settlement date, if any.
func (b *Delayed) SettleDate() (time.Time, bool) {
	return b.settleDate, !b.settleDate.IsZero()
}

func (b *Delayed) IsMarketOpen(t time.Time) bool { return isMarketOpen(t) }

// BuyOrder settles any proceeds that are due at t before checking for
// unsettled cash, so a buy on the settlement date needs no prior Capital call.
func (b *Delayed) BuyOrder(ticker string, shares int, price float64, t time.Time) (float64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("buy %s: %w", ticker, ErrZeroOrNegativeShares)
	}
	b.settle(t)
	if b.unsettled.IsPositive() {
		return 0, fmt.Errorf("buy %s: %w (%s settles %s)", ticker, ErrSettlementPending,
			b.unsettled.StringFixed(2), b.settleDate.Format("2006-01-02"))
	}
	c := cost(shares, price)
	if c.GreaterThan(b.capital) {
		return 0, fmt.Errorf("buy %d %s @ %.4f: %w", shares, ticker, price, ErrInsufficientCapital)
	}
	b.capital = b.capital.Sub(c)
	return b.capital.InexactFloat64(), nil
}

func (b *Delayed) SellOrder(ticker string, shares int, price float64, t time.Time) {
	b.unsettled = b.unsettled.Add(cost(shares, price).Sub(b.commission))
	b.settleDate = markethours.SettlementDate(t)
}

// settle moves unsettled cash into capital once at is on or after the
// settlement date. It runs at most once per sale.
func (b *Delayed) settle(at time.Time) {
	if b.settleDate.IsZero() || !markethours.OnOrAfter(at, b.settleDate) {
		return
	}
	b.capital = b.capital.Add(b.unsettled)
	b.unsettled = decimal.Zero
	b.settleDate = time.Time{}
}
