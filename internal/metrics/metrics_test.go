package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheLookup(forecast.KindPanel, 7, 5)
	m.CacheLookup(forecast.KindPanel, 3, 3)
	m.UpstreamCall("legacy", "", 200*time.Millisecond)
	m.UpstreamCall("legacy", forecast.KindUpstreamRejected, time.Second)
	m.TotalsPersisted(forecast.KindCluster, 4)
	m.ObserveHTTP("/api/v1/forecast/daily", 200, 10*time.Millisecond)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.requestedDays.WithLabelValues("panel")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.cachedDays.WithLabelValues("panel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("legacy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("legacy", "upstream_rejected")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.persistedTotal.WithLabelValues("cluster")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/forecast/daily", "200")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.TotalsPersisted(forecast.KindPanel, 1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `solar_forecast_persisted_totals_total{kind="panel"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
