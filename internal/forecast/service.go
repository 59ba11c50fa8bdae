package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/petrovoleh/solar-forecast/internal/common"
)

const (
	defaultPersistTimeout = 10 * time.Second
	defaultFetchTimeout   = 2 * time.Minute
)

// Service resolves devices, consults the daily totals cache and calls the
// forecast provider only for the days the cache is missing.
type Service struct {
	registry Registry
	authz    Authorizer
	store    TotalsStore
	provider Provider

	policy         DateRangePolicy
	log            *zap.Logger
	observer       Observer
	persistTimeout time.Duration
	fetchTimeout   time.Duration
	now            func() time.Time

	flight singleflight.Group
}

// Option customizes a Service.
type Option func(*Service)

func WithPolicy(p DateRangePolicy) Option { return func(s *Service) { s.policy = p } }
func WithLogger(l *zap.Logger) Option     { return func(s *Service) { s.log = l } }
func WithObserver(o Observer) Option      { return func(s *Service) { s.observer = o } }

// WithPersistTimeout bounds cache writes, which outlive the caller's context.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) { s.persistTimeout = d }
}

// WithFetchTimeout bounds a shared upstream fetch, which no single caller owns.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) { s.fetchTimeout = d }
}

// NewService creates a new Service.
func NewService(registry Registry, authz Authorizer, store TotalsStore, provider Provider, opts ...Option) *Service {
	s := &Service{
		registry:       registry,
		authz:          authz,
		store:          store,
		provider:       provider,
		policy:         NewDateRangePolicy(DefaultHorizonDays, time.UTC),
		log:            zap.NewNop(),
		observer:       nopObserver{},
		persistTimeout: defaultPersistTimeout,
		fetchTimeout:   defaultFetchTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy exposes the date policy in force.
func (s *Service) Policy() DateRangePolicy {
	return s.policy
}

// GetDailyTotals returns the predicted energy per day for the device over [from, to].
// from and to may be dates or date-times; only the calendar day is used.
func (s *Service) GetDailyTotals(ctx context.Context, caller Caller, ref DeviceRef, from, to string) ([]DailyTotal, error) {
	target, err := s.resolve(ctx, caller, ref)
	if err != nil {
		return nil, err
	}
	fromDay, toDay, err := s.policy.ParseWindow(from, to)
	if err != nil {
		return nil, err
	}
	params, err := target.Parameters()
	if err != nil {
		return nil, err
	}
	return s.dailyTotals(ctx, target, params, fromDay, toDay)
}

// GetForecastSeries returns the raw provider series for the window without touching the cache.
func (s *Service) GetForecastSeries(ctx context.Context, caller Caller, ref DeviceRef, from, to string) (Series, error) {
	target, err := s.resolve(ctx, caller, ref)
	if err != nil {
		return Series{}, err
	}
	fromDay, toDay, err := s.policy.ParseWindow(from, to)
	if err != nil {
		return Series{}, err
	}
	params, err := target.Parameters()
	if err != nil {
		return Series{}, err
	}
	return s.callProvider(ctx, Request{CapacityParameters: params, From: fromDay, To: toDay})
}

func (s *Service) dailyTotals(ctx context.Context, target Target, params CapacityParameters, from, to time.Time) ([]DailyTotal, error) {
	ref := target.Ref()
	log := s.log.With(zap.String("kind", string(ref.Kind)), zap.String("device_id", ref.ID))

	days := common.DaysBetween(from, to)
	cached, err := s.readCache(ctx, target, from, to)
	if err != nil {
		log.Error("daily totals cache read failed", zap.Error(err))
		return nil, NewError(KindInternal, "failed to read cached daily totals").Wrap(err)
	}

	totals := make(map[string]float64, len(days))
	var missing []string
	for _, day := range days {
		if kwh, ok := cached[day]; ok {
			totals[day] = kwh
			continue
		}
		missing = append(missing, day)
	}
	s.observer.CacheLookup(ref.Kind, len(days), len(days)-len(missing))

	if len(missing) == 0 {
		log.Debug("returning cached daily totals", zap.Int("days", len(days)))
		return SortedTotals(totals), nil
	}

	// missing is ascending because days is.
	first, _ := common.ParseDay(missing[0])
	last, _ := common.ParseDay(missing[len(missing)-1])
	log.Info("fetching forecast for cache gaps",
		zap.Int("gaps", len(missing)),
		zap.String("first_gap", missing[0]),
		zap.String("last_gap", missing[len(missing)-1]),
		zap.Float64("capacity_kwp", params.CapacityKWp),
	)

	fresh, err := s.fetchShared(ctx, ref, missing, Request{CapacityParameters: params, From: first, To: last})
	if err != nil {
		log.Warn("forecast fetch failed", zap.Error(err))
		return nil, err
	}

	for day, kwh := range fresh {
		totals[day] = kwh
	}
	return SortedTotals(totals), nil
}

// readCache returns the cached kWh per day for the target. A cluster day is
// cached when the cluster itself has a record, or when every member panel has
// one; member figures are summed and scaled by the inverter loss.
func (s *Service) readCache(ctx context.Context, target Target, from, to time.Time) (map[string]float64, error) {
	switch t := target.(type) {
	case SingleTarget:
		records, err := s.store.ReadRange(ctx, t.Ref(), from, to)
		if err != nil {
			return nil, err
		}
		out := make(map[string]float64, len(records))
		for _, r := range records {
			out[r.Date] += r.TotalEnergyKWh
		}
		return out, nil

	case GroupTarget:
		var own []DailyEnergyTotal
		members := make([][]DailyEnergyTotal, len(t.Panels))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			own, err = s.store.ReadRange(gctx, t.Ref(), from, to)
			return err
		})
		for i, p := range t.Panels {
			i, p := i, p
			g.Go(func() error {
				records, err := s.store.ReadRange(gctx, DeviceRef{Kind: KindPanel, ID: p.ID}, from, to)
				members[i] = records
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		sums := make(map[string]float64)
		counts := make(map[string]int)
		for _, records := range members {
			seen := make(map[string]bool, len(records))
			for _, r := range records {
				sums[r.Date] += r.TotalEnergyKWh
				if !seen[r.Date] {
					seen[r.Date] = true
					counts[r.Date]++
				}
			}
		}
		out := make(map[string]float64)
		factor := t.Cluster.Inverter.Factor()
		for day, n := range counts {
			if n == len(t.Panels) {
				out[day] = sums[day] * factor
			}
		}
		for _, r := range own {
			out[r.Date] = r.TotalEnergyKWh
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported target %T", target)
	}
}

// fetchShared collapses identical concurrent gap fills into one upstream call.
// The shared call runs detached from every caller and persists its result, so
// a caller that goes away neither fails the others nor discards the fetch.
func (s *Service) fetchShared(ctx context.Context, ref DeviceRef, missing []string, req Request) (map[string]float64, error) {
	key := fmt.Sprintf("%s|%.6f|%s", ref.Key(), req.CapacityKWp, strings.Join(missing, ","))
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fillGaps(fctx, ref, missing, req)
	})

	select {
	case <-ctx.Done():
		return nil, NewError(KindUpstreamUnavailable, "forecast temporarily unavailable").Wrap(ctx.Err())
	case res := <-ch:
		if res.Shared {
			s.log.Debug("forecast fetch shared with a concurrent request", zap.String("key", key))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]float64), nil
	}
}

// fillGaps fetches the window, keeps only the missing days and stores them.
func (s *Service) fillGaps(ctx context.Context, ref DeviceRef, missing []string, req Request) (map[string]float64, error) {
	series, err := s.callProvider(ctx, req)
	if err != nil {
		return nil, err
	}
	gaps := make(map[string]struct{}, len(missing))
	for _, day := range missing {
		gaps[day] = struct{}{}
	}
	fresh := series.DailyEnergy(gaps)
	if len(fresh) < len(missing) {
		s.log.Warn("forecast provider returned partial data",
			zap.String("device", ref.Key()),
			zap.Int("requested_days", len(missing)),
			zap.Int("returned_days", len(fresh)),
		)
	}
	s.persist(ctx, ref, fresh)
	return fresh, nil
}

func (s *Service) callProvider(ctx context.Context, req Request) (Series, error) {
	if s.provider == nil {
		return Series{}, NewError(KindUpstreamUnavailable, "no forecast provider configured")
	}
	start := time.Now()
	series, err := s.provider.Fetch(ctx, req)
	if err != nil {
		err = asUpstream(err)
		s.observer.UpstreamCall(s.provider.Name(), KindOf(err), time.Since(start))
		return Series{}, err
	}
	s.observer.UpstreamCall(s.provider.Name(), "", time.Since(start))
	return series, nil
}

// persist upserts freshly computed totals under the requested device.
func (s *Service) persist(ctx context.Context, ref DeviceRef, fresh map[string]float64) {
	if len(fresh) == 0 {
		return
	}
	now := s.now().UTC()
	totals := make([]DailyEnergyTotal, 0, len(fresh))
	for day, kwh := range fresh {
		totals = append(totals, DailyEnergyTotal{
			DeviceKind:     ref.Kind,
			DeviceID:       ref.ID,
			Date:           day,
			TotalEnergyKWh: kwh,
			UpdatedAt:      now,
		})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Date < totals[j].Date })

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	if err := s.store.WriteMany(wctx, totals); err != nil {
		s.log.Warn("failed to persist daily totals",
			zap.String("device", ref.Key()),
			zap.Int("count", len(totals)),
			zap.Error(err),
		)
		return
	}
	s.observer.TotalsPersisted(ref.Kind, len(totals))
}

func (s *Service) resolve(ctx context.Context, caller Caller, ref DeviceRef) (Target, error) {
	if ref.ID == "" {
		return nil, NewError(KindInvalidRequest, "device id is required")
	}
	switch ref.Kind {
	case KindPanel:
		panel, err := s.registry.Panel(ctx, ref.ID)
		if err != nil {
			return nil, registryError(err, "load panel %s", ref.ID)
		}
		if err := s.authorize(ctx, caller, panel.OwnerID, "panel does not belong to the user"); err != nil {
			return nil, err
		}
		return SingleTarget{Panel: panel}, nil

	case KindCluster:
		cluster, err := s.registry.Cluster(ctx, ref.ID)
		if err != nil {
			return nil, registryError(err, "load cluster %s", ref.ID)
		}
		if err := s.authorize(ctx, caller, cluster.OwnerID, "cluster does not belong to the user"); err != nil {
			return nil, err
		}
		panels, err := s.registry.ClusterPanels(ctx, ref.ID)
		if err != nil {
			return nil, registryError(err, "load cluster %s", ref.ID)
		}
		checked := map[string]bool{cluster.OwnerID: true}
		for _, p := range panels {
			if checked[p.OwnerID] {
				continue
			}
			if err := s.authorize(ctx, caller, p.OwnerID, "some panels in the cluster do not belong to the user"); err != nil {
				return nil, err
			}
			checked[p.OwnerID] = true
		}
		return GroupTarget{Cluster: cluster, Panels: panels}, nil

	default:
		return nil, NewError(KindInvalidRequest, "invalid type %q; must be 'panel' or 'cluster'", ref.Kind)
	}
}

func (s *Service) authorize(ctx context.Context, caller Caller, ownerID, denial string) error {
	if s.authz == nil {
		return NewError(KindForbidden, "forbidden: %s", denial)
	}
	ok, err := s.authz.IsOwnerOrAdmin(ctx, ownerID, caller)
	if err != nil {
		return NewError(KindInternal, "authorization check failed").Wrap(err)
	}
	if !ok {
		return NewError(KindForbidden, "forbidden: %s", denial)
	}
	return nil
}

func registryError(err error, format string, args ...any) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(KindInternal, "failed to load device").Wrap(fmt.Errorf(format+": %w", append(args, err)...))
}

func asUpstream(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind.IsUpstream() {
		return e
	}
	return NewError(KindUpstreamUnavailable, "forecast temporarily unavailable").Wrap(err)
}
