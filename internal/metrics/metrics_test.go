package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.OrdersSubmitted.WithLabelValues("buy").Inc()
	m.TradingLocked.Set(BoolGauge(true))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersSubmitted.WithLabelValues("buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradingLocked))

	// a second registry must not collide
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func getHealth(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealthStatus(3 * time.Minute)
	h.now = func() time.Time { return now }

	code, body := getHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])

	h.SetFeedOK(true)
	h.SetBrokerOK(true)
	h.RecordCycle(now.Add(-time.Minute), true)
	code, body = getHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["trading_locked"])

	now = now.Add(10 * time.Minute)
	code, _ = getHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code, "stale cycle")

	h.SetFeedOK(false)
	h.SetStoreOK(false)
	_, body = getHealth(t, h)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg).CyclesTotal.Inc()
	s := NewServer(":0", NewHealthStatus(0), reg, nil)
	s.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, resp.Body)
	resp.Body.Close()
	assert.Contains(t, buf.String(), "cryptoagent_cycles_total 1")

	resp, err = http.Get(srv.URL + "/extra")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
