package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candle represents one OHLCV bar for a fixed interval.
// TS is the bar start time, zoned to the exchange's local timezone.
// Candles are values; nothing mutates one after it is produced.
type Candle struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	TS     time.Time `json:"ts"`
}

// NewCandle builds a candle. Argument order follows the provider feeds:
// open, close, high, low, volume, timestamp.
func NewCandle(open, close, high, low float64, volume int64, ts time.Time) Candle {
	return Candle{
		Open:   open,
		Close:  close,
		High:   high,
		Low:    low,
		Volume: volume,
		TS:     ts,
	}
}

// Bullish reports whether the bar closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the bar closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// In returns a copy of the candle with its timestamp converted to loc.
func (c Candle) In(loc *time.Location) Candle {
	c.TS = c.TS.In(loc)
	return c
}

func (c Candle) String() string {
	return fmt.Sprintf("%s, O: %g, C: %g, H: %g, L: %g, V: %d",
		c.TS.Format("01/02/06 3:04:05 PM -0700"), c.Open, c.Close, c.High, c.Low, c.Volume)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the closing prices of candles, in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
