package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulation engine.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: mode, status
	RunDuration      prometheus.Histogram
	CandlesProcessed prometheus.Counter

	// Order flow
	FillsTotal      *prometheus.CounterVec // labels: side
	RejectionsTotal *prometheus.CounterVec // labels: reason

	// Results
	EndingCash *prometheus.GaugeVec // labels: ticker
	NetReturn  *prometheus.GaugeVec // labels: ticker

	// Price source
	SourceFetchDur   *prometheus.HistogramVec // labels: source
	CacheHitsTotal   *prometheus.CounterVec   // labels: cache
	CacheMissesTotal *prometheus.CounterVec   // labels: cache
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_runs_total",
			Help: "Strategy runs over a whole ticker set (by mode and outcome)",
		}, []string{"mode", "status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_run_duration_seconds",
			Help:    "Wall time of one run across all tickers including fetch",
			Buckets: prometheus.DefBuckets,
		}),
		CandlesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_candles_processed_total",
			Help: "Candles fed through strategies",
		}),

		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_fills_total",
			Help: "Accepted orders (by side)",
		}, []string{"side"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_order_rejections_total",
			Help: "Orders declined by the account or broker (by reason)",
		}, []string{"reason"}),

		EndingCash: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_ending_cash",
			Help: "Settled plus unsettled cash at the end of the last run",
		}, []string{"ticker"}),
		NetReturn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_net_return",
			Help: "Sum of position returns in the last run",
		}, []string{"ticker"}),

		SourceFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradesim_source_fetch_duration_seconds",
			Help:    "Price source fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_cache_hits_total",
			Help: "Bar series served from cache",
		}, []string{"cache"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_cache_misses_total",
			Help: "Bar series not found in cache",
		}, []string{"cache"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.CandlesProcessed,
		m.FillsTotal,
		m.RejectionsTotal,
		m.EndingCash,
		m.NetReturn,
		m.SourceFetchDur,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// HealthStatus represents the process health.
type HealthStatus struct {
	mu sync.RWMutex

	RunsActive     int       `json:"runs_active"`
	LastRunAt      time.Time `json:"last_run_at"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// RunStarted marks one more run in flight.
func (h *HealthStatus) RunStarted() {
	h.mu.Lock()
	h.RunsActive++
	h.mu.Unlock()
}

// RunFinished marks a run as done.
func (h *HealthStatus) RunFinished() {
	h.mu.Lock()
	h.RunsActive--
	h.LastRunAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lastRun := ""
	if !h.LastRunAt.IsZero() {
		lastRun = h.LastRunAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RunsActive      int     `json:"runs_active"`
		LastRunAt       string  `json:"last_run_at"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	}{
		Status:          "healthy",
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RunsActive:      h.RunsActive,
		LastRunAt:       lastRun,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("[metrics] shutdown error: %v", err)
	}
}
