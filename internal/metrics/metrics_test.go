package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FillsTotal.WithLabelValues("BUY").Inc()
	m.FillsTotal.WithLabelValues("BUY").Inc()
	m.RejectionsTotal.WithLabelValues("market_closed").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FillsTotal.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("market_closed")))

	// A second set on the same registry collides.
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.RunStarted()
	h.RunStarted()
	h.RunFinished()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 1.0, body["runs_active"])
	assert.NotEmpty(t, body["last_run_at"])
}

func TestNewMetrics_RunHelpDescribesWholeRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RunsTotal.WithLabelValues("backtest", "ok").Inc()
	m.RunDuration.Observe(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	help := map[string]string{}
	for _, f := range families {
		help[f.GetName()] = f.GetHelp()
	}
	assert.NotContains(t, strings.ToLower(help["tradesim_runs_total"]), "per-ticker")
	assert.NotContains(t, strings.ToLower(help["tradesim_run_duration_seconds"]), "per-ticker")
	assert.Contains(t, help["tradesim_run_duration_seconds"], "all tickers")
}

func TestServer_StopLogsShutdownError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	s := NewServer(addr, NewHealthStatus())
	active := make(chan struct{}, 1)
	s.srv.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateActive {
			select {
			case active <- struct{}{}:
			default:
			}
		}
	}
	s.Start()

	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", addr)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	// A half-sent request keeps the connection active through shutdown.
	_, err = conn.Write([]byte("GET /metrics HTTP/1.1\r\n"))
	require.NoError(t, err)
	select {
	case <-active:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never became active")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Stop(ctx)

	assert.Contains(t, buf.String(), "[metrics] shutdown error: context canceled")
}
