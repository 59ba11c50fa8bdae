package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrovoleh/solar-forecast/internal/common"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// DeviceHistory holds the cached daily totals of one device, keyed by date.
type DeviceHistory struct {
	Days map[string]forecast.DailyEnergyTotal
}

// MemoryStore is a concurrency-safe in-memory implementation of forecast.TotalsStore.
type MemoryStore struct {
	mu sync.RWMutex

	// key: device key, value: history
	data map[string]*DeviceHistory

	// records older than maxAge read as missing so they get refetched
	maxAge time.Duration
	now    func() time.Time
}

// NewMemoryStore creates a new MemoryStore. If maxAge is <= 0, records never expire.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]*DeviceHistory),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// ReadRange returns the stored totals for ref between from and to (inclusive), ascending by date.
func (s *MemoryStore) ReadRange(_ context.Context, ref forecast.DeviceRef, from, to time.Time) ([]forecast.DailyEnergyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[ref.Key()]
	if !ok {
		return nil, nil
	}

	var result []forecast.DailyEnergyTotal
	for _, day := range common.DaysBetween(from, to) {
		total, ok := history.Days[day]
		if !ok || s.expired(total) {
			continue
		}
		result = append(result, total)
	}
	return result, nil
}

// WriteOne upserts a single total.
func (s *MemoryStore) WriteOne(ctx context.Context, total forecast.DailyEnergyTotal) error {
	return s.WriteMany(ctx, []forecast.DailyEnergyTotal{total})
}

// WriteMany upserts totals by (device, date) and prunes expired records.
func (s *MemoryStore) WriteMany(_ context.Context, totals []forecast.DailyEnergyTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]*DeviceHistory)
	for _, total := range totals {
		key := total.Ref().Key()
		history, ok := s.data[key]
		if !ok {
			history = &DeviceHistory{Days: make(map[string]forecast.DailyEnergyTotal)}
			s.data[key] = history
		}

		if existing, ok := history.Days[total.Date]; ok {
			total.ID = existing.ID
		} else if total.ID == "" {
			total.ID = uuid.NewString()
		}
		if total.UpdatedAt.IsZero() {
			total.UpdatedAt = s.now().UTC()
		}
		history.Days[total.Date] = total
		touched[key] = history
	}

	if s.maxAge > 0 {
		for _, history := range touched {
			for day, total := range history.Days {
				if s.expired(total) {
					delete(history.Days, day)
				}
			}
		}
	}
	return nil
}

// Len returns the number of stored records across all devices.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, history := range s.data {
		n += len(history.Days)
	}
	return n
}

func (s *MemoryStore) expired(total forecast.DailyEnergyTotal) bool {
	return s.maxAge > 0 && total.UpdatedAt.Before(s.now().Add(-s.maxAge))
}
