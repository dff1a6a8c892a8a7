// Package broker models how trade proceeds turn into spendable capital.
//
// A Broker is owned by exactly one account.Account and is never shared
// between simulations. Two settlement policies are provided: Immediate, for
// plain backtests, and Delayed, which charges a flat commission and holds
// sale proceeds until a weekday at least two calendar days after the trade.
package broker

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/markethours"
)

// Order rejections. All but ErrNoOpenPosition are expected market
// conditions: the order is skipped and the run continues.
var (
	ErrInsufficientCapital  = errors.New("insufficient capital")
	ErrZeroOrNegativeShares = errors.New("share count must be positive")
	ErrMarketClosed         = errors.New("market closed")
	ErrSettlementPending    = errors.New("prior sale proceeds not yet settled")
	ErrPositionOpen         = errors.New("position already open")

	// ErrNoOpenPosition marks a close attempted with nothing open. It is a
	// strategy bug and terminates the run.
	ErrNoOpenPosition = errors.New("no open position")
)

// Commission is the flat fee charged per sell by the Delayed broker.
const Commission = 0.01

// Broker is the capital and order capability consumed by an account.
type Broker interface {
	// Capital returns spendable funds as of at, first settling any proceeds
	// whose settlement date has been reached.
	Capital(at time.Time) float64

	// UnsettledCash returns proceeds that are not yet spendable.
	UnsettledCash() float64

	// IsMarketOpen gates every order attempt.
	IsMarketOpen(t time.Time) bool

	// BuyOrder debits price*shares and returns the remaining capital.
	BuyOrder(ticker string, shares int, price float64, t time.Time) (float64, error)

	// SellOrder credits the proceeds of price*shares. It always succeeds.
	SellOrder(ticker string, shares int, price float64, t time.Time)
}

func cost(shares int, price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(shares)))
}

func isMarketOpen(t time.Time) bool {
	return markethours.IsMarketOpen(t)
}

// Reason maps a rejection to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientCapital):
		return "insufficient_capital"
	case errors.Is(err, ErrZeroOrNegativeShares):
		return "zero_shares"
	case errors.Is(err, ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ErrSettlementPending):
		return "settlement_pending"
	case errors.Is(err, ErrPositionOpen):
		return "position_open"
	case errors.Is(err, ErrNoOpenPosition):
		return "no_open_position"
	default:
		return "other"
	}
}
