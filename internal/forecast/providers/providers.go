// Package providers holds the HTTP adapters for the external forecast model.
package providers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// Modes select the upstream wire shape.
const (
	ModeLegacy     = "legacy"
	ModeAggregated = "aggregated"
)

// Config is everything an adapter needs; it is injected, never global.
type Config struct {
	BaseURL      string
	Frequency    string
	InitTimeFreq int
	Client       *http.Client
	Backoff      BackoffConfig
	Logger       *zap.Logger
}

func (c Config) httpConfig() HTTPClientConfig {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	backoff := c.Backoff
	if backoff.InitialInterval <= 0 {
		backoff = DefaultBackoff
	}
	return HTTPClientConfig{Client: client, Backoff: backoff, Logger: c.Logger}
}

// New builds the adapter for mode.
func New(mode string, cfg Config) (forecast.Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("forecast base url is required")
	}
	switch mode {
	case ModeLegacy, "":
		switch cfg.Frequency {
		case "", Frequency15Min, FrequencyHourly:
		default:
			return nil, fmt.Errorf("unsupported forecast frequency %q", cfg.Frequency)
		}
		return NewLegacyProvider(cfg), nil
	case ModeAggregated:
		return NewAggregatedProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported forecast mode %q", mode)
	}
}
