package pricesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesim/internal/markethours"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aggsBody = `{
  "ticker": "AAPL", "status": "OK", "resultsCount": 2,
  "results": [
    {"v": 250.0, "o": 1.30, "c": 1.31, "h": 1.31, "l": 1.29, "t": 1600695420000},
    {"v": 100, "o": 1.28, "c": 1.28, "h": 1.28, "l": 1.28, "t": 1600695360000}
  ]
}`

func TestParsePolygonAggs(t *testing.T) {
	candles, err := ParsePolygonAggs([]byte(aggsBody), markethours.Eastern)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// 1600695360000 ms = 2020-09-21 13:36 UTC = 09:36 Eastern
	assert.Equal(t, 9, candles[0].TS.Hour())
	assert.Equal(t, 36, candles[0].TS.Minute())
	assert.Equal(t, int64(100), candles[0].Volume)
	assert.Equal(t, int64(250), candles[1].Volume)
	assert.Equal(t, 1.29, candles[1].Low)
}

func TestParsePolygonAggs_Errors(t *testing.T) {
	_, err := ParsePolygonAggs([]byte(`{"results": [`), markethours.Eastern)
	assert.Error(t, err)

	_, err = ParsePolygonAggs([]byte(`{"status":"ERROR","error":"bad key"}`), markethours.Eastern)
	assert.ErrorContains(t, err, "bad key")

	_, err = ParsePolygonAggs([]byte(`{"results":[{"o":1,"c":1,"h":1}]}`), markethours.Eastern)
	assert.Error(t, err)

	candles, err := ParsePolygonAggs([]byte(`{"status":"OK","resultsCount":0}`), markethours.Eastern)
	assert.NoError(t, err)
	assert.Empty(t, candles)
}

func TestPolygon_History(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apiKey")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(aggsBody))
	}))
	defer srv.Close()

	p := NewPolygon(PolygonConfig{APIKey: "secret", BaseURL: srv.URL + "/v2/"}, markethours.Eastern)
	req := Request{
		Ticker: "aapl", Days: 15, Multiplier: 1, Timespan: "minute",
		End: time.Date(2020, 9, 21, 12, 0, 0, 0, markethours.Eastern),
	}
	candles, err := p.History(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, candles, 2)
	assert.Equal(t, "/v2/aggs/ticker/AAPL/range/1/minute/2020-09-06/2020-09-21", gotPath)
	assert.Equal(t, "secret", gotKey)
}

func TestPolygon_HistoryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"ERROR","error":"Unknown API Key"}`))
	}))
	defer srv.Close()

	req := Request{Ticker: "AAPL", Days: 1, Multiplier: 1, Timespan: "minute"}

	_, err := NewPolygon(PolygonConfig{BaseURL: srv.URL}, markethours.Eastern).History(context.Background(), req)
	assert.ErrorContains(t, err, "api key")

	_, err = NewPolygon(PolygonConfig{APIKey: "k", BaseURL: srv.URL}, markethours.Eastern).History(context.Background(), req)
	assert.ErrorContains(t, err, "401")
	assert.ErrorContains(t, err, "Unknown API Key")
}
