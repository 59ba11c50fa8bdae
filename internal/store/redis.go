package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/common"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

const redisKeyPrefix = "solar:daily_totals:"

// RedisStore keeps one string key per (device, date) holding the kWh value,
// so every record carries its own TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisStore connects to url and verifies the connection. A ttl > 0 expires a
// record that long after it was last written.
func NewRedisStore(url string, ttl time.Duration, log *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("connected to Redis")
	return NewRedisStoreFromClient(client, ttl, log), nil
}

func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, log: log}
}

func redisKey(ref forecast.DeviceRef, date string) string {
	return redisKeyPrefix + string(ref.Kind) + ":" + ref.ID + ":" + date
}

func (s *RedisStore) ReadRange(ctx context.Context, ref forecast.DeviceRef, from, to time.Time) ([]forecast.DailyEnergyTotal, error) {
	days := common.DaysBetween(from, to)
	if len(days) == 0 {
		return nil, nil
	}
	keys := make([]string, len(days))
	for i, day := range days {
		keys[i] = redisKey(ref, day)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read daily totals for %s: %w", ref.Key(), err)
	}

	var totals []forecast.DailyEnergyTotal
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		kwh, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.log.Warn("ignoring malformed cached total",
				zap.String("device", ref.Key()), zap.String("date", days[i]), zap.String("value", raw))
			continue
		}
		totals = append(totals, forecast.DailyEnergyTotal{
			DeviceKind:     ref.Kind,
			DeviceID:       ref.ID,
			Date:           days[i],
			TotalEnergyKWh: kwh,
		})
	}
	return totals, nil
}

func (s *RedisStore) WriteOne(ctx context.Context, total forecast.DailyEnergyTotal) error {
	return s.WriteMany(ctx, []forecast.DailyEnergyTotal{total})
}

// WriteMany sets every (device, date) key in one transaction. SET overwrites and
// restarts the key's TTL, so writes are upserts and a later duplicate wins.
func (s *RedisStore) WriteMany(ctx context.Context, totals []forecast.DailyEnergyTotal) error {
	if len(totals) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range totals {
			pipe.Set(ctx, redisKey(t.Ref(), t.Date), strconv.FormatFloat(t.TotalEnergyKWh, 'f', -1, 64), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write daily totals: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
