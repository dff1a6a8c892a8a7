package execution

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_RecordAndList(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	defer j.Close()

	at := time.Date(2020, 9, 21, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordFill(Fill{
		RunID: "run-1", Mode: "backtest", Strategy: "sma-crossover",
		Side: "BUY", Ticker: "AAPL", Shares: 10, Price: 1.28, FilledAt: at,
	}))
	require.NoError(t, j.RecordFill(Fill{
		RunID: "run-1", Mode: "backtest", Strategy: "sma-crossover",
		Side: "SELL", Ticker: "AAPL", Shares: 10, Price: 1.31, Return: 0.3, FilledAt: at.Add(time.Minute),
	}))

	trades, err := j.GetTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	newest := trades[0]
	assert.Equal(t, "SELL", newest.Side)
	assert.Equal(t, int64(10), newest.Shares)
	assert.InDelta(t, 1.31, newest.Price, 1e-9)
	assert.InDelta(t, 0.3, newest.Return, 1e-9)
	assert.Equal(t, "2020-09-21T10:01:00Z", newest.FilledAt)
	assert.Contains(t, newest.String(), "AAPL")

	one, err := j.GetTrades(1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
