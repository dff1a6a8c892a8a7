package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Close is one sell fill against a position.
type Close struct {
	Price  float64   `json:"price"`
	Shares int       `json:"shares"`
	Time   time.Time `json:"time"`
}

// Position is one round trip in a single ticker. Positions are created and
// mutated only by Account and are kept for reporting once closed.
type Position struct {
	Ticker     string    `json:"ticker"`
	EntryPrice float64   `json:"entry_price"`
	Shares     int       `json:"shares"`
	OpenedAt   time.Time `json:"opened_at"`
	Open       bool      `json:"open"`
	Closes     []Close   `json:"closes"`
}

func newPosition(ticker string, shares int, bid float64, t time.Time) Position {
	return Position{
		Ticker:     ticker,
		EntryPrice: bid,
		Shares:     shares,
		OpenedAt:   t,
		Open:       true,
	}
}

// close records a full exit with a single fill.
func (p *Position) close(ask float64, t time.Time) {
	p.Open = false
	p.Closes = []Close{{Price: ask, Shares: p.Shares, Time: t}}
}

// TotalReturn is the sum of fill proceeds less the entry cost.
// It is negative entry cost while the position is still open.
func (p Position) TotalReturn() float64 {
	proceeds := decimal.Zero
	for _, c := range p.Closes {
		proceeds = proceeds.Add(decimal.NewFromFloat(c.Price).Mul(decimal.NewFromInt(int64(c.Shares))))
	}
	entry := decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromInt(int64(p.Shares)))
	return proceeds.Sub(entry).InexactFloat64()
}

func (p Position) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s bought %d @ $%.4f %s", p.Ticker, p.Shares, p.EntryPrice, p.OpenedAt.Format("2006-01-02 15:04:05"))
	for _, c := range p.Closes {
		fmt.Fprintf(&b, " | sold %d @ $%.4f %s", c.Shares, c.Price, c.Time.Format("2006-01-02 15:04:05"))
	}
	if p.Open {
		b.WriteString(" | open")
	} else {
		fmt.Fprintf(&b, " | return $%.4f", p.TotalReturn())
	}
	return b.String()
}
