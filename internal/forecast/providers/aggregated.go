package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/petrovoleh/solar-forecast/internal/common"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// AggregatedProvider talks to the XGBoost model service, which already sums
// energy per day: GET /daily_forecast.
type AggregatedProvider struct {
	name     string
	endpoint string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewAggregatedProvider(cfg Config) *AggregatedProvider {
	return &AggregatedProvider{
		name:     "aggregated",
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/daily_forecast",
		httpCfg:  cfg.httpConfig(),
		circuit:  newBreaker("aggregated"),
	}
}

func (p *AggregatedProvider) Name() string {
	return p.name
}

func (p *AggregatedProvider) Fetch(ctx context.Context, req forecast.Request) (forecast.Series, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
		values.Set("start", common.FormatDay(req.From))
		values.Set("end", common.FormatDay(req.To))
		values.Set("kwp", strconv.FormatFloat(req.CapacityKWp, 'f', -1, 64))

		u := fmt.Sprintf("%s?%s", p.endpoint, values.Encode())
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/json")
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return forecast.Series{}, classify(err)
	}
	defer resp.Body.Close()

	var payload []forecast.DailyPrediction
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.Series{}, malformed(err)
	}
	for i, d := range payload {
		day, err := common.ParseDay(d.Date)
		if err != nil {
			return forecast.Series{}, malformed(err)
		}
		payload[i].Date = common.FormatDay(day)
	}
	return forecast.Series{Provider: p.name, Daily: payload}, nil
}
