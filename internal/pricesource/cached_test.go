package pricesource

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradesim/internal/markethours"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReplaysImportedSeries(t *testing.T) {
	bars, err := sqlite.Open(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	defer bars.Close()

	candles, err := ReadCSV(strings.NewReader(sampleCSV), markethours.Eastern)
	require.NoError(t, err)
	require.NoError(t, bars.WriteBars(context.Background(), "AAPL", candles))

	src := NewStore(bars, markethours.Eastern)
	all, err := src.History(context.Background(), Request{Ticker: "AAPL", Days: 15})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, markethours.Eastern, all[0].TS.Location())
	assert.Equal(t, 9, all[0].TS.Hour())

	outside, err := src.History(context.Background(), Request{
		Ticker: "AAPL", Days: 3,
		End: time.Date(2020, 9, 10, 0, 0, 0, 0, markethours.Eastern),
	})
	require.NoError(t, err)
	assert.Empty(t, outside)

	inside, err := src.History(context.Background(), Request{
		Ticker: "AAPL", Days: 3,
		End: time.Date(2020, 9, 21, 0, 0, 0, 0, markethours.Eastern),
	})
	require.NoError(t, err)
	assert.Len(t, inside, 2)
}

func TestTimed_ObservesLatency(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	src := NewTimed(&Static{Label: "fixture", Candles: map[string][]model.Candle{
		"AAPL": {model.NewCandle(1, 1, 1, 1, 1, time.Now())},
	}}, m)

	out, err := src.History(context.Background(), Request{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "fixture", src.Name())
	assert.Equal(t, 1, testutil.CollectAndCount(m.SourceFetchDur))
}
