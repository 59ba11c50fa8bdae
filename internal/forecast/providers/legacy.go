package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/petrovoleh/solar-forecast/internal/common"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// Frequencies understood by the legacy model.
const (
	Frequency15Min  = "15min"
	FrequencyHourly = "hourly"
)

// LegacyProvider talks to the sample-level model service: POST /forecast returning
// a power series at a fixed cadence.
type LegacyProvider struct {
	name         string
	endpoint     string
	frequency    string
	initTimeFreq int
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
}

type legacyRequest struct {
	InitTimeFreq  int     `json:"init_time_freq"`
	StartDatetime string  `json:"start_datetime"`
	EndDatetime   string  `json:"end_datetime"`
	Frequency     string  `json:"frequency"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	CapacityKWp   float64 `json:"capacity_kwp"`
}

type legacySample struct {
	Datetime string  `json:"datetime"`
	PowerKW  float64 `json:"power_kw"`
}

func NewLegacyProvider(cfg Config) *LegacyProvider {
	freq := cfg.Frequency
	if freq == "" {
		freq = Frequency15Min
	}
	initTimeFreq := cfg.InitTimeFreq
	if initTimeFreq <= 0 {
		initTimeFreq = 15
	}
	return &LegacyProvider{
		name:         "legacy",
		endpoint:     strings.TrimRight(cfg.BaseURL, "/") + "/forecast",
		frequency:    freq,
		initTimeFreq: initTimeFreq,
		httpCfg:      cfg.httpConfig(),
		circuit:      newBreaker("legacy"),
	}
}

func (p *LegacyProvider) Name() string {
	return p.name
}

// Cadence is the sample spacing implied by the configured frequency.
func (p *LegacyProvider) Cadence() time.Duration {
	if p.frequency == FrequencyHourly {
		return time.Hour
	}
	return 15 * time.Minute
}

func (p *LegacyProvider) Fetch(ctx context.Context, req forecast.Request) (forecast.Series, error) {
	body, err := json.Marshal(legacyRequest{
		InitTimeFreq:  p.initTimeFreq,
		StartDatetime: common.Midnight(req.From).Format(common.DateTimeLayout),
		EndDatetime:   common.Midnight(req.To).Add(24*time.Hour - time.Second).Format(common.DateTimeLayout),
		Frequency:     p.frequency,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		CapacityKWp:   req.CapacityKWp,
	})
	if err != nil {
		return forecast.Series{}, fmt.Errorf("encode forecast request: %w", err)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
		return r, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return forecast.Series{}, classify(err)
	}
	defer resp.Body.Close()

	var payload []legacySample
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.Series{}, malformed(err)
	}

	series := forecast.Series{
		Provider: p.name,
		Cadence:  p.Cadence(),
		Samples:  make([]forecast.Sample, 0, len(payload)),
	}
	for _, s := range payload {
		ts, err := common.ParseTimestamp(s.Datetime)
		if err != nil {
			return forecast.Series{}, malformed(err)
		}
		series.Samples = append(series.Samples, forecast.Sample{Time: ts, PowerKW: s.PowerKW})
	}
	return series, nil
}
