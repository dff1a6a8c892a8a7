package indicator

import "fmt"

// SMA calculates Simple Moving Average over a sliding window of closes.
// Uses a preallocated circular buffer; the oldest price is overwritten once
// the window is full.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA_%d", s.period) }

// Period returns the window size.
func (s *SMA) Period() int { return s.period }

func (s *SMA) Add(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period {
		return
	}

	// Sum oldest to newest instead of keeping a running total, so the value
	// depends only on the prices currently in the window.
	var sum float64
	for i := 0; i < s.period; i++ {
		sum += s.buf[(s.idx+i)%s.period]
	}
	s.current = sum / float64(s.period)
}

func (s *SMA) Value() (float64, bool) {
	if !s.Ready() {
		return 0, false
	}
	return s.current, true
}

func (s *SMA) Ready() bool { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// Average returns the mean of the last period prices, or of all prices when
// fewer are given. It is the one-shot form of SMA.
func Average(prices []float64, period int) float64 {
	if len(prices) == 0 || period <= 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}
