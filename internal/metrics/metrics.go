// Package metrics exposes engine and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// Metrics implements forecast.Observer.
type Metrics struct {
	requestedDays  *prometheus.CounterVec
	cachedDays     *prometheus.CounterVec
	upstreamCalls  *prometheus.CounterVec
	upstreamTime   *prometheus.HistogramVec
	persistedTotal *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestedDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solar_forecast_requested_days_total",
			Help: "Days requested from the daily totals engine.",
		}, []string{"kind"}),
		cachedDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solar_forecast_cached_days_total",
			Help: "Requested days answered from the daily totals cache.",
		}, []string{"kind"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solar_forecast_upstream_calls_total",
			Help: "Calls to the forecast model by outcome.",
		}, []string{"provider", "outcome"}),
		upstreamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solar_forecast_upstream_duration_seconds",
			Help:    "Forecast model call latency, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		persistedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solar_forecast_persisted_totals_total",
			Help: "Daily totals written to the store.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solar_forecast_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solar_forecast_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.requestedDays, m.cachedDays,
		m.upstreamCalls, m.upstreamTime,
		m.persistedTotal,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the text exposition of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheLookup(kind forecast.DeviceKind, requestedDays, cachedDays int) {
	m.requestedDays.WithLabelValues(string(kind)).Add(float64(requestedDays))
	m.cachedDays.WithLabelValues(string(kind)).Add(float64(cachedDays))
}

func (m *Metrics) UpstreamCall(provider string, kind forecast.ErrorKind, elapsed time.Duration) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	m.upstreamCalls.WithLabelValues(provider, outcome).Inc()
	m.upstreamTime.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) TotalsPersisted(kind forecast.DeviceKind, n int) {
	m.persistedTotal.WithLabelValues(string(kind)).Add(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
