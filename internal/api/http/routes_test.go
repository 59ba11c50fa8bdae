package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/auth"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
	"github.com/petrovoleh/solar-forecast/internal/metrics"
	"github.com/petrovoleh/solar-forecast/internal/registry"
	"github.com/petrovoleh/solar-forecast/internal/store"
)

// stubProvider answers 1.5 kWh for every requested day as six 15-minute samples at 1 kW.
type stubProvider struct {
	calls atomic.Int32
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(_ context.Context, req forecast.Request) (forecast.Series, error) {
	p.calls.Add(1)
	if p.err != nil {
		return forecast.Series{}, p.err
	}
	s := forecast.Series{Provider: "stub", Cadence: 15 * time.Minute}
	for d := req.From; !d.After(req.To); d = d.AddDate(0, 0, 1) {
		for i := 0; i < 6; i++ {
			s.Samples = append(s.Samples, forecast.Sample{Time: d.Add(time.Duration(600+15*i) * time.Minute), PowerKW: 1})
		}
	}
	return s, nil
}

type testEnv struct {
	app      *fiber.App
	provider *stubProvider
	store    *store.MemoryStore
	jwt      *auth.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	reg := registry.NewMemoryRegistry()
	site := &forecast.Location{Latitude: 50, Longitude: 30}
	require.NoError(t, reg.Load(registry.Seed{
		Clusters: []forecast.Cluster{{ID: "c1", OwnerID: "u1"}},
		Panels: []forecast.Panel{
			{ID: "p1", OwnerID: "u1", PowerRatingW: 400, EfficiencyPct: 20, Location: site},
			{ID: "p2", OwnerID: "u1", PowerRatingW: 400, EfficiencyPct: 20, Location: site, ClusterID: "c1"},
			{ID: "zero", OwnerID: "u1", PowerRatingW: 0, EfficiencyPct: 20, Location: site},
		},
	}))

	policy := forecast.NewDateRangePolicy(forecast.DefaultHorizonDays, time.UTC)
	policy.Now = func() time.Time { return time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC) }

	env := &testEnv{provider: &stubProvider{}, store: store.NewMemoryStore(0)}
	svc := forecast.NewService(reg, auth.OwnershipPolicy{}, env.store, env.provider, forecast.WithPolicy(policy))

	jwtSvc, err := auth.NewJWTService("secret", "solar-test", zap.NewNop())
	require.NoError(t, err)
	env.jwt = jwtSvc

	env.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	env.app.Use(Instrument(metrics.New(prometheus.NewRegistry())))
	RegisterRoutes(env.app, svc, jwtSvc)
	return env
}

func (e *testEnv) token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := e.jwt.Issue(subject, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) get(t *testing.T, target, token string) (int, []byte) {
	t.Helper()
	return e.do(t, http.MethodGet, target, token)
}

func (e *testEnv) do(t *testing.T, method, target, token string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func errorKind(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload["error"]
}

func TestDailyTotals(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1", "USER")

	status, body := env.get(t, "/api/v1/forecast/daily?type=panel&id=p1&from=2024-01-01&to=2024-01-02", tok)
	require.Equal(t, http.StatusOK, status, string(body))

	var rows []forecast.DailyTotal
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Equal(t, []forecast.DailyTotal{
		{Date: "2024-01-01", TotalEnergyKWh: 1.5},
		{Date: "2024-01-02", TotalEnergyKWh: 1.5},
	}, rows)
	assert.Contains(t, string(body), `"totalEnergy_kwh":1.5`)

	status, _ = env.get(t, "/api/forecast/getTotal?type=PANEL&panelId=p1&from=2024-01-01%2000:00:00&to=2024-01-02%2000:00:00", tok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), env.provider.calls.Load())
	assert.Equal(t, 2, env.store.Len())
}

func TestPeriodTotal(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1", "")

	status, body := env.get(t, "/api/v1/forecast/period?type=cluster&id=c1&period=week", tok)
	require.Equal(t, http.StatusOK, status, string(body))

	var total forecast.PeriodTotal
	require.NoError(t, json.Unmarshal(body, &total))
	assert.Equal(t, forecast.PeriodWeek, total.Period)
	assert.Equal(t, "2023-12-30", total.From)
	assert.Equal(t, "2024-01-05", total.To)
	assert.InDelta(t, 10.5, total.TotalEnergyKWh, 1e-9)

	status, body = env.get(t, "/api/forecast/getPeriodTotal?type=panel&panelId=p1&period=year", tok)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", errorKind(t, body))
}

func TestForecastSeries(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1", "")

	status, body := env.get(t, "/api/forecast/getForecast?type=panel&panelId=p1&from=2024-01-01&to=2024-01-01", tok)
	require.Equal(t, http.StatusOK, status, string(body))

	var series forecast.Series
	require.NoError(t, json.Unmarshal(body, &series))
	assert.Len(t, series.Samples, 6)
	assert.Zero(t, env.store.Len())

	status, body = env.do(t, http.MethodPost, "/api/forecast/getForecast?type=panel&panelId=p1&from=2024-01-01%2000:00:00&to=2024-01-01%2000:00:00", tok)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &series))
	assert.Len(t, series.Samples, 6)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)
	target := "/api/v1/forecast/daily?type=panel&id=p1&from=2024-01-01&to=2024-01-01"

	status, body := env.get(t, target, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"unauthorized"}`, string(body))

	status, _ = env.get(t, target, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = env.get(t, target, env.token(t, "u2", ""))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", errorKind(t, body))

	status, _ = env.get(t, target, env.token(t, "u2", auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, status)
}

func TestErrorStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "u1", "")

	cases := []struct {
		name   string
		target string
		status int
		kind   string
	}{
		{"missing type", "/api/v1/forecast/daily?id=p1&from=2024-01-01&to=2024-01-01", 400, "invalid_request"},
		{"bad type", "/api/v1/forecast/daily?type=inverter&id=p1&from=2024-01-01&to=2024-01-01", 400, "invalid_request"},
		{"missing to", "/api/v1/forecast/daily?type=panel&id=p1&from=2024-01-01", 400, "invalid_request"},
		{"bad date", "/api/v1/forecast/daily?type=panel&id=p1&from=01.01.2024&to=2024-01-01", 400, "invalid_request"},
		{"too early", "/api/v1/forecast/daily?type=panel&id=p1&from=2019-12-31&to=2020-01-01", 400, "out_of_range_date"},
		{"too late", "/api/v1/forecast/daily?type=panel&id=p1&from=2024-01-05&to=2024-01-19", 400, "out_of_range_date"},
		{"zero capacity", "/api/v1/forecast/daily?type=panel&id=zero&from=2024-01-01&to=2024-01-01", 400, "invalid_capacity"},
		{"unknown panel", "/api/v1/forecast/daily?type=panel&id=nope&from=2024-01-01&to=2024-01-01", 404, "not_found"},
		{"unknown route", "/api/v1/forecast/nothing", 404, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.get(t, tc.target, tok)
			assert.Equal(t, tc.status, status, string(body))
			assert.Equal(t, tc.kind, errorKind(t, body))
		})
	}
	assert.Zero(t, env.provider.calls.Load())
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = forecast.NewError(forecast.KindUpstreamRejected, "forecast temporarily unavailable").
		Wrap(errors.New("422 from model"))

	status, body := env.get(t, "/api/v1/forecast/daily?type=panel&id=p1&from=2024-01-01&to=2024-01-01", env.token(t, "u1", ""))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.JSONEq(t, `{"error":"upstream_rejected","message":"forecast temporarily unavailable"}`, string(body))
	assert.Zero(t, env.store.Len())
}

func TestErrorHandler_HidesInternalDetails(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: password authentication failed")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal","message":"internal server error"}`, string(body))
}
