package forecast

import (
	"context"
	"sync"
	"time"

	"github.com/petrovoleh/solar-forecast/internal/common"
)

type fakeRegistry struct {
	panels   map[string]Panel
	clusters map[string]Cluster
	err      error
}

func (r *fakeRegistry) Panel(_ context.Context, id string) (Panel, error) {
	if r.err != nil {
		return Panel{}, r.err
	}
	p, ok := r.panels[id]
	if !ok {
		return Panel{}, NewError(KindNotFound, "panel %s not found", id)
	}
	return p, nil
}

func (r *fakeRegistry) Cluster(_ context.Context, id string) (Cluster, error) {
	if r.err != nil {
		return Cluster{}, r.err
	}
	c, ok := r.clusters[id]
	if !ok {
		return Cluster{}, NewError(KindNotFound, "cluster %s not found", id)
	}
	return c, nil
}

func (r *fakeRegistry) ClusterPanels(_ context.Context, clusterID string) ([]Panel, error) {
	var out []Panel
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if p, ok := r.panels[id]; ok && p.ClusterID == clusterID {
			out = append(out, p)
		}
	}
	return out, nil
}

type ownerAuthz struct{}

func (ownerAuthz) IsOwnerOrAdmin(_ context.Context, ownerID string, caller Caller) (bool, error) {
	return caller.Admin || caller.ID == ownerID, nil
}

type fakeStore struct {
	mu       sync.Mutex
	rows     map[string]DailyEnergyTotal
	writes   int
	readErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]DailyEnergyTotal)}
}

func (s *fakeStore) ReadRange(_ context.Context, ref DeviceRef, from, to time.Time) ([]DailyEnergyTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []DailyEnergyTotal
	for _, day := range common.DaysBetween(from, to) {
		if r, ok := s.rows[ref.Key()+"|"+day]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) WriteOne(ctx context.Context, total DailyEnergyTotal) error {
	return s.WriteMany(ctx, []DailyEnergyTotal{total})
}

func (s *fakeStore) WriteMany(_ context.Context, totals []DailyEnergyTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	for _, t := range totals {
		s.rows[t.Ref().Key()+"|"+t.Date] = t
		s.writes++
	}
	return nil
}

func (s *fakeStore) put(kind DeviceKind, id, day string, kwh float64) {
	s.rows[DeviceRef{Kind: kind, ID: id}.Key()+"|"+day] = DailyEnergyTotal{
		DeviceKind: kind, DeviceID: id, Date: day, TotalEnergyKWh: kwh,
	}
}

func (s *fakeStore) get(kind DeviceKind, id, day string) (DailyEnergyTotal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[DeviceRef{Kind: kind, ID: id}.Key()+"|"+day]
	return r, ok
}

type fakeProvider struct {
	mu       sync.Mutex
	calls    []Request
	series   Series
	err      error
	perDayKW float64
}

func (p *fakeProvider) Name() string { return "fake" }

// Fetch returns p.series when set, otherwise four 15-minute samples of
// perDayKW for every requested day.
func (p *fakeProvider) Fetch(_ context.Context, req Request) (Series, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return Series{}, p.err
	}
	if p.series.Samples != nil || p.series.Daily != nil {
		return p.series, nil
	}
	s := Series{Provider: "fake", Cadence: 15 * time.Minute}
	for d := req.From; !d.After(req.To); d = d.AddDate(0, 0, 1) {
		for i := 0; i < 4; i++ {
			s.Samples = append(s.Samples, Sample{Time: d.Add(time.Duration(12*60+15*i) * time.Minute), PowerKW: p.perDayKW})
		}
	}
	return s, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type recordingObserver struct {
	mu        sync.Mutex
	lookups   [][2]int
	upstream  []ErrorKind
	persisted int
}

func (o *recordingObserver) CacheLookup(_ DeviceKind, requested, cached int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups = append(o.lookups, [2]int{requested, cached})
}

func (o *recordingObserver) UpstreamCall(_ string, kind ErrorKind, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.upstream = append(o.upstream, kind)
}

func (o *recordingObserver) TotalsPersisted(_ DeviceKind, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persisted += n
}

func fixedPolicy() DateRangePolicy {
	p := NewDateRangePolicy(DefaultHorizonDays, time.UTC)
	p.Now = func() time.Time { return time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC) }
	return p
}

func floatPtr(v float64) *float64 { return &v }
