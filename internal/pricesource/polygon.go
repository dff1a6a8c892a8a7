package pricesource

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradesim/internal/model"

	"github.com/tidwall/gjson"
)

// DefaultPolygonURL is the aggregates API root.
const DefaultPolygonURL = "https://api.polygon.io/v2"

// PolygonConfig configures the aggregates client.
type PolygonConfig struct {
	APIKey  string
	BaseURL string        // default: DefaultPolygonURL
	Timeout time.Duration // default: 15s
	Debug   bool
}

// Polygon fetches aggregate bars over HTTP.
type Polygon struct {
	apiKey     string
	baseURL    string
	debug      bool
	loc        *time.Location
	httpClient *http.Client
}

// NewPolygon creates a client that zones bars to loc.
func NewPolygon(cfg PolygonConfig, loc *time.Location) *Polygon {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultPolygonURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Polygon{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		debug:      cfg.Debug,
		loc:        loc,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *Polygon) Name() string { return "polygon" }

func (p *Polygon) buildURL(req Request) string {
	path := fmt.Sprintf("%s/aggs/ticker/%s/range/%d/%s/%s/%s",
		p.baseURL,
		url.PathEscape(strings.ToUpper(req.Ticker)),
		req.Multiplier,
		req.Timespan,
		req.From().Format("2006-01-02"),
		req.To().Format("2006-01-02"),
	)
	q := url.Values{}
	q.Set("apiKey", p.apiKey)
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	return path + "?" + q.Encode()
}

func (p *Polygon) History(ctx context.Context, req Request) ([]model.Candle, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("polygon: api key not configured")
	}
	reqURL := p.buildURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	if p.debug {
		log.Printf("[polygon] GET %s", strings.Replace(reqURL, p.apiKey, "***", 1))
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("polygon %s: %w", req.Ticker, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polygon %s: read body: %w", req.Ticker, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = gjson.GetBytes(raw, "message").String()
		}
		return nil, fmt.Errorf("polygon %s: status %d: %s", req.Ticker, resp.StatusCode, msg)
	}
	return ParsePolygonAggs(raw, p.loc)
}

// ParsePolygonAggs decodes an aggregates response body. Volume may arrive
// as an integer or a float; timestamps are epoch milliseconds.
func ParsePolygonAggs(raw []byte, loc *time.Location) ([]model.Candle, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("polygon: invalid json response")
	}
	doc := gjson.ParseBytes(raw)
	if status := doc.Get("status").String(); status == "ERROR" {
		return nil, fmt.Errorf("polygon: %s", doc.Get("error").String())
	}

	results := doc.Get("results")
	if !results.Exists() {
		return nil, nil
	}
	if !results.IsArray() {
		return nil, fmt.Errorf("polygon: results is not an array")
	}

	candles := make([]model.Candle, 0, len(results.Array()))
	var parseErr error
	results.ForEach(func(_, bar gjson.Result) bool {
		for _, k := range []string{"o", "c", "h", "l", "t"} {
			if !bar.Get(k).Exists() {
				parseErr = fmt.Errorf("polygon: bar missing %q", k)
				return false
			}
		}
		ts := time.UnixMilli(bar.Get("t").Int()).In(loc)
		candles = append(candles, model.NewCandle(
			bar.Get("o").Float(),
			bar.Get("c").Float(),
			bar.Get("h").Float(),
			bar.Get("l").Float(),
			int64(bar.Get("v").Float()),
			ts,
		))
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return Normalize(candles, loc), nil
}
