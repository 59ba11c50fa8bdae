package forecast

import (
	"context"
	"time"
)

// Request is one provider call: sizing, siting and the day window [From, To].
type Request struct {
	CapacityParameters
	From time.Time
	To   time.Time
}

// Provider abstracts the external irradiance/energy forecasting service.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req Request) (Series, error)
}

// TotalsStore is the contract every daily-totals backend must satisfy.
// Writes are upserts keyed by (device, date).
type TotalsStore interface {
	ReadRange(ctx context.Context, ref DeviceRef, from, to time.Time) ([]DailyEnergyTotal, error)
	WriteOne(ctx context.Context, total DailyEnergyTotal) error
	WriteMany(ctx context.Context, totals []DailyEnergyTotal) error
}

// Registry is the read-only view of the device registry.
// Missing devices are reported with KindNotFound.
type Registry interface {
	Panel(ctx context.Context, id string) (Panel, error)
	Cluster(ctx context.Context, id string) (Cluster, error)
	ClusterPanels(ctx context.Context, clusterID string) ([]Panel, error)
}

// Authorizer gives the positive ownership signal required before any work is done.
type Authorizer interface {
	IsOwnerOrAdmin(ctx context.Context, ownerID string, caller Caller) (bool, error)
}

// Observer receives engine events; metrics implement it.
type Observer interface {
	CacheLookup(kind DeviceKind, requestedDays, cachedDays int)
	UpstreamCall(provider string, kind ErrorKind, elapsed time.Duration)
	TotalsPersisted(kind DeviceKind, n int)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(DeviceKind, int, int)              {}
func (nopObserver) UpstreamCall(string, ErrorKind, time.Duration) {}
func (nopObserver) TotalsPersisted(DeviceKind, int)               {}
