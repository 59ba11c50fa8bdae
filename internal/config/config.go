package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration

	LogLevel  string
	LogFormat string // json | console

	Forecast ForecastConfig
	Store    StoreConfig
	Registry RegistryConfig
	JWT      JWTConfig
	Prefetch PrefetchConfig
}

// ForecastConfig configures the upstream model adapter and the date policy.
type ForecastConfig struct {
	BaseURL      string
	Mode         string // legacy | aggregated
	Frequency    string // 15min | hourly
	InitTimeFreq int
	Timeout      time.Duration
	MaxRetries   int
	HorizonDays  int
	Timezone     *time.Location
}

type StoreConfig struct {
	Backend     string // memory | postgres | redis
	DatabaseURL string
	RedisURL    string
	MaxAge      time.Duration // 0 keeps totals forever
}

type RegistryConfig struct {
	Backend  string // memory | postgres
	SeedFile string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// PrefetchConfig drives the cache warm-up job; a zero Interval disables it.
type PrefetchConfig struct {
	Targets  []forecast.DeviceRef
	Interval time.Duration
	Days     int
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"HTTP_TIMEOUT":            "20s",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"FORECAST_BASE_URL":       "http://localhost:8000",
	"FORECAST_MODE":           "legacy",
	"FORECAST_FREQUENCY":      "15min",
	"FORECAST_INIT_TIME_FREQ": 15,
	"FORECAST_TIMEOUT":        "30s",
	"FORECAST_MAX_RETRIES":    2,
	"FORECAST_HORIZON_DAYS":   forecast.DefaultHorizonDays,
	"FORECAST_TIMEZONE":       "UTC",
	"STORE_BACKEND":           "memory",
	"STORE_MAX_AGE":           "0s",
	"REGISTRY_BACKEND":        "memory",
	"JWT_ISSUER":              "",
	"PREFETCH_INTERVAL":       "0s",
	"PREFETCH_DAYS":           7,
}

// Load reads an optional .env file, then environment variables with defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "REGISTRY_SEED_FILE", "JWT_SECRET", "PREFETCH_TARGETS"} {
		_ = v.BindEnv(key)
	}
	return v
}

// FromViper builds and validates the configuration from v.
func FromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:      v.GetString("PORT"),
		LogLevel:  strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
		Forecast: ForecastConfig{
			BaseURL:      strings.TrimRight(v.GetString("FORECAST_BASE_URL"), "/"),
			Mode:         strings.ToLower(v.GetString("FORECAST_MODE")),
			Frequency:    strings.ToLower(v.GetString("FORECAST_FREQUENCY")),
			InitTimeFreq: v.GetInt("FORECAST_INIT_TIME_FREQ"),
			MaxRetries:   v.GetInt("FORECAST_MAX_RETRIES"),
			HorizonDays:  v.GetInt("FORECAST_HORIZON_DAYS"),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(v.GetString("STORE_BACKEND")),
			DatabaseURL: v.GetString("DATABASE_URL"),
			RedisURL:    v.GetString("REDIS_URL"),
		},
		Registry: RegistryConfig{
			Backend:  strings.ToLower(v.GetString("REGISTRY_BACKEND")),
			SeedFile: v.GetString("REGISTRY_SEED_FILE"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		Prefetch: PrefetchConfig{
			Days: v.GetInt("PREFETCH_DAYS"),
		},
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"FORECAST_TIMEOUT", &cfg.Forecast.Timeout},
		{"STORE_MAX_AGE", &cfg.Store.MaxAge},
		{"PREFETCH_INTERVAL", &cfg.Prefetch.Interval},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(v.GetString(d.key)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	if cfg.Forecast.Timezone, err = time.LoadLocation(v.GetString("FORECAST_TIMEZONE")); err != nil {
		return nil, fmt.Errorf("invalid FORECAST_TIMEZONE: %w", err)
	}
	if cfg.Prefetch.Targets, err = ParseTargets(v.GetString("PREFETCH_TARGETS")); err != nil {
		return nil, fmt.Errorf("invalid PREFETCH_TARGETS: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"LOG_FORMAT", c.LogFormat, []string{"json", "console"}},
		{"FORECAST_MODE", c.Forecast.Mode, []string{"legacy", "aggregated"}},
		{"FORECAST_FREQUENCY", c.Forecast.Frequency, []string{"15min", "hourly"}},
		{"STORE_BACKEND", c.Store.Backend, []string{"memory", "postgres", "redis"}},
		{"REGISTRY_BACKEND", c.Registry.Backend, []string{"memory", "postgres"}},
	}
	for _, chk := range checks {
		if !contains(chk.allowed, chk.value) {
			return fmt.Errorf("invalid %s %q: must be one of %s", chk.key, chk.value, strings.Join(chk.allowed, ", "))
		}
	}

	switch {
	case c.Forecast.BaseURL == "":
		return errors.New("FORECAST_BASE_URL is required")
	case c.JWT.Secret == "":
		return errors.New("JWT_SECRET is required")
	case c.Forecast.MaxRetries < 0:
		return errors.New("FORECAST_MAX_RETRIES must not be negative")
	case c.Forecast.HorizonDays < 0:
		return errors.New("FORECAST_HORIZON_DAYS must not be negative")
	case c.Prefetch.Days < 1:
		return errors.New("PREFETCH_DAYS must be at least 1")
	case c.Store.Backend == "postgres" && c.Store.DatabaseURL == "":
		return errors.New("DATABASE_URL is required for the postgres store")
	case c.Store.Backend == "redis" && c.Store.RedisURL == "":
		return errors.New("REDIS_URL is required for the redis store")
	case c.Registry.Backend == "postgres" && c.Store.DatabaseURL == "":
		return errors.New("DATABASE_URL is required for the postgres registry")
	}
	return nil
}

// ParseTargets reads a comma-separated list of kind:id pairs.
func ParseTargets(s string) ([]forecast.DeviceRef, error) {
	var refs []forecast.DeviceRef
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		kind, id, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("target %q: expected kind:id", item)
		}
		k, err := forecast.ParseDeviceKind(kind)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", item, err)
		}
		refs = append(refs, forecast.DeviceRef{Kind: k, ID: strings.TrimSpace(id)})
	}
	return refs, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
