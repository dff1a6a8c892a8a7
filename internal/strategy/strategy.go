// Package strategy drives a candle sequence through an indicator and turns
// the resulting entry and exit decisions into account orders.
//
// A Strategy instance makes a single forward pass over candles that are
// already materialized and in ascending time order. It is not restartable:
// build a new instance (and a new account) for every run.
package strategy

import (
	"errors"

	"tradesim/internal/account"
	"tradesim/internal/model"
)

// ErrConsumed is returned when Execute is called a second time.
var ErrConsumed = errors.New("strategy already executed")

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Execute runs the strategy over candles, placing orders on acct.
	// Rejected orders do not stop the run; a contract violation such as
	// closing with nothing open does.
	Execute(candles []model.Candle, acct *account.Account) error
}

// Factory builds a fresh strategy for one ticker.
type Factory func(ticker string) (Strategy, error)
