package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/auth"
	"github.com/petrovoleh/solar-forecast/internal/common"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

const jobTimeout = 2 * time.Minute

// Warmer is the part of forecast.Service the warm-up job drives.
type Warmer interface {
	GetDailyTotals(ctx context.Context, caller forecast.Caller, ref forecast.DeviceRef, from, to string) ([]forecast.DailyTotal, error)
	Policy() forecast.DateRangePolicy
}

// Scheduler periodically fills the daily totals cache for configured devices,
// so interactive requests hit the cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Warmer
	targets   []forecast.DeviceRef
	interval  time.Duration
	days      int
	log       *zap.Logger
}

// New creates a new Scheduler covering today and the following days-1 days.
func New(targets []forecast.DeviceRef, interval time.Duration, days int, service Warmer, log *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		service:   service,
		targets:   targets,
		interval:  interval,
		days:      days,
		log:       log,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.targets) == 0 || s.interval <= 0 {
		s.log.Info("scheduler: prefetch disabled", zap.Int("targets", len(s.targets)), zap.Duration("interval", s.interval))
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info("scheduler: prefetch started", zap.Int("targets", len(s.targets)), zap.Duration("interval", s.interval))
	return nil
}

// RunOnce warms every target concurrently and returns how many succeeded.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	from, to := s.window()
	s.log.Debug("scheduler: running prefetch job", zap.String("from", from), zap.String("to", to))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, ref := range s.targets {
		ref := ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.GetDailyTotals(ctx, auth.SystemCaller, ref, from, to); err != nil {
				s.log.Warn("scheduler: prefetch failed",
					zap.String("kind", string(ref.Kind)),
					zap.String("device_id", ref.ID),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.log.Info("scheduler: completed prefetch job", zap.Int("ok", ok), zap.Int("targets", len(s.targets)))
	return ok
}

func (s *Scheduler) window() (string, string) {
	policy := s.service.Policy()
	today := policy.Today()
	days := s.days
	if days < 1 {
		days = 1
	}
	to := today.AddDate(0, 0, days-1)
	if latest := policy.Latest(); to.After(latest) {
		to = latest
	}
	return common.FormatDay(today), common.FormatDay(to)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
