package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

func requireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("SOLAR_INTEGRATION") != "1" {
		t.Skip("set SOLAR_INTEGRATION=1 to run container-backed tests")
	}
}

func TestPostgresStore_Contract(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("solar_test"),
		postgres.WithUsername("solar"),
		postgres.WithPassword("solar"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := OpenPostgres(dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ClosePostgres(db) })

	s := NewPostgresStore(db, zap.NewNop())
	require.NoError(t, s.Migrate(ctx))
	testTotalsStore(t, s)
}

func TestRedisStore_Contract(t *testing.T) {
	requireIntegration(t)
	ctx := context.Background()

	ctr, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	url, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewRedisStore(url, time.Hour, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testTotalsStore(t, s)

	panel := forecast.DeviceRef{Kind: forecast.KindPanel, ID: "contract-p1"}
	require.NoError(t, s.client.Expire(ctx, redisKey(panel, "2024-01-01"), time.Minute).Err())
	require.NoError(t, s.WriteOne(ctx, total(forecast.KindPanel, panel.ID, "2024-01-02", 5)))

	older, err := s.client.TTL(ctx, redisKey(panel, "2024-01-01")).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, older, time.Minute, "a write to another date must not extend this record")
	newer, err := s.client.TTL(ctx, redisKey(panel, "2024-01-02")).Result()
	require.NoError(t, err)
	assert.Greater(t, newer, time.Minute)

	require.NoError(t, s.client.Set(ctx, redisKey(panel, "2024-02-01"), "not-a-number", 0).Err())
	got, err := s.ReadRange(ctx, panel, d("2024-02-01"), d("2024-02-01"))
	require.NoError(t, err)
	require.Empty(t, got)
}
