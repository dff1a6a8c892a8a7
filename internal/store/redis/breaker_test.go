package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2020, 9, 21, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(max, time.Second)
	b.now = clk.now
	return b, clk
}

var errFail = errors.New("fail")

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errFail }), errFail)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_ProbeClosesOrReopens(t *testing.T) {
	b, clk := newTestBreaker(1)
	var seen []State
	b.OnStateChange = func(_, to State) { seen = append(seen, to) }

	b.Do(func() error { return errFail })
	clk.advance(2 * time.Second)
	b.Do(func() error { return errFail })
	require.Equal(t, StateOpen, b.State())

	clk.advance(2 * time.Second)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateOpen, StateHalfOpen, StateClosed}, seen)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	b.Do(func() error { return errFail })
	b.Do(func() error { return errFail })
	b.Do(func() error { return nil })
	b.Do(func() error { return errFail })
	b.Do(func() error { return errFail })
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
}
