package broker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Immediate settles every order synchronously with no commission.
// Unsettled cash is always zero.
type Immediate struct {
	capital decimal.Decimal
}

// NewImmediate creates a broker holding capital in settled funds.
func NewImmediate(capital float64) *Immediate {
	return &Immediate{capital: decimal.NewFromFloat(capital)}
}

func (b *Immediate) Capital(time.Time) float64 { return b.capital.InexactFloat64() }

func (b *Immediate) UnsettledCash() float64 { return 0 }

func (b *Immediate) IsMarketOpen(t time.Time) bool { return isMarketOpen(t) }

func (b *Immediate) BuyOrder(ticker string, shares int, price float64, t time.Time) (float64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("buy %s: %w", ticker, ErrZeroOrNegativeShares)
	}
	c := cost(shares, price)
	if c.GreaterThan(b.capital) {
		return 0, fmt.Errorf("buy %d %s @ %.4f: %w", shares, ticker, price, ErrInsufficientCapital)
	}
	b.capital = b.capital.Sub(c)
	return b.capital.InexactFloat64(), nil
}

func (b *Immediate) SellOrder(ticker string, shares int, price float64, t time.Time) {
	b.capital = b.capital.Add(cost(shares, price))
}
