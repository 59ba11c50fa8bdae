package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	httpapi "github.com/petrovoleh/solar-forecast/internal/api/http"
	"github.com/petrovoleh/solar-forecast/internal/auth"
	"github.com/petrovoleh/solar-forecast/internal/config"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
	"github.com/petrovoleh/solar-forecast/internal/forecast/providers"
	"github.com/petrovoleh/solar-forecast/internal/metrics"
	"github.com/petrovoleh/solar-forecast/internal/registry"
	"github.com/petrovoleh/solar-forecast/internal/scheduler"
	"github.com/petrovoleh/solar-forecast/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("solar-forecast stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	if cfg.Store.Backend == "postgres" || cfg.Registry.Backend == "postgres" {
		conn, err := store.OpenPostgres(cfg.Store.DatabaseURL, zlog)
		if err != nil {
			return err
		}
		defer func() { _ = store.ClosePostgres(conn) }()
		db = conn
	}

	totals, closeStore, err := newTotalsStore(ctx, cfg, db, zlog)
	if err != nil {
		return err
	}
	defer closeStore()

	devices, err := newRegistry(ctx, cfg, db, zlog)
	if err != nil {
		return err
	}

	provider, err := providers.New(cfg.Forecast.Mode, providers.Config{
		BaseURL:      cfg.Forecast.BaseURL,
		Frequency:    cfg.Forecast.Frequency,
		InitTimeFreq: cfg.Forecast.InitTimeFreq,
		Client:       &http.Client{Timeout: cfg.Forecast.Timeout},
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.Forecast.MaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Logger: zlog.Named("provider"),
	})
	if err != nil {
		return err
	}

	promRegistry := metrics.NewRegistry()
	m := metrics.New(promRegistry)

	service := forecast.NewService(devices, auth.OwnershipPolicy{}, totals, provider,
		forecast.WithPolicy(forecast.NewDateRangePolicy(cfg.Forecast.HorizonDays, cfg.Forecast.Timezone)),
		forecast.WithLogger(zlog.Named("forecast")),
		forecast.WithObserver(m),
		forecast.WithFetchTimeout(cfg.Forecast.Timeout*time.Duration(cfg.Forecast.MaxRetries+1)+time.Minute),
	)

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, zlog.Named("auth"))
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.Prefetch.Targets, cfg.Prefetch.Interval, cfg.Prefetch.Days, service, zlog.Named("scheduler"))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "solar-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTPTimeout,
		WriteTimeout:          cfg.HTTPTimeout + cfg.Forecast.Timeout,
		ErrorHandler:          httpapi.ErrorHandler(zlog.Named("http")),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(httpapi.Instrument(m))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "solar-forecast",
		})
	})

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler(promRegistry))
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	httpapi.RegisterRoutes(app, service, jwtService)

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("listening",
			zap.String("port", cfg.Port),
			zap.String("forecast_mode", cfg.Forecast.Mode),
			zap.String("store", cfg.Store.Backend),
			zap.String("registry", cfg.Registry.Backend),
		)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Warn("error during shutdown", zap.Error(err))
	}
	return nil
}

func newTotalsStore(ctx context.Context, cfg *config.AppConfig, db *gorm.DB, zlog *zap.Logger) (forecast.TotalsStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		s := store.NewPostgresStore(db, zlog.Named("store"))
		if err := s.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "redis":
		s, err := store.NewRedisStore(cfg.Store.RedisURL, cfg.Store.MaxAge, zlog.Named("store"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return store.NewMemoryStore(cfg.Store.MaxAge), func() {}, nil
	}
}

func newRegistry(ctx context.Context, cfg *config.AppConfig, db *gorm.DB, zlog *zap.Logger) (forecast.Registry, error) {
	if cfg.Registry.Backend == "postgres" {
		r := registry.NewPostgresRegistry(db, zlog.Named("registry"))
		if err := r.Migrate(ctx); err != nil {
			return nil, err
		}
		if cfg.Registry.SeedFile != "" {
			seed, err := registry.ReadSeedFile(cfg.Registry.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := r.Import(ctx, seed); err != nil {
				return nil, err
			}
		}
		return r, nil
	}

	if cfg.Registry.SeedFile == "" {
		zlog.Warn("no REGISTRY_SEED_FILE configured; device registry is empty")
		return registry.NewMemoryRegistry(), nil
	}
	r, err := registry.LoadSeedFile(cfg.Registry.SeedFile)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
