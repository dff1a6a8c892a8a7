// Package indicator provides streaming technical indicators over closing prices.
//
// Indicators consume one price at a time and expose a value once they have
// seen enough prices to fill their window. They hold no locks: each instance
// belongs to a single execution loop.
package indicator

import (
	"fmt"
	"strings"
)

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_9", "EMA_21").
	Name() string

	// Period returns the number of prices needed before Ready.
	Period() int

	// Add feeds the next closing price.
	Add(price float64)

	// Value returns the current value, or false while still warming up.
	Value() (float64, bool)

	// Ready returns true when enough prices have been observed.
	Ready() bool

	// Reset clears all state so the instance can be reused.
	Reset()
}

// Kinds accepted by New.
const (
	KindSMA = "SMA"
	KindEMA = "EMA"
)

// New creates an indicator of the given kind and period.
func New(kind string, period int) (Indicator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("indicator period must be positive, got %d", period)
	}
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case KindSMA, "":
		return NewSMA(period), nil
	case KindEMA:
		return NewEMA(period), nil
	default:
		return nil, fmt.Errorf("unknown indicator kind %q", kind)
	}
}
