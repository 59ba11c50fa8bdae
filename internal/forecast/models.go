package forecast

import (
	"strings"
	"time"
)

// DeviceKind discriminates the two kinds of forecastable assets.
type DeviceKind string

const (
	KindPanel   DeviceKind = "panel"
	KindCluster DeviceKind = "cluster"
)

// ParseDeviceKind accepts the discriminators used by API clients.
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "panel", "single":
		return KindPanel, nil
	case "cluster", "group":
		return KindCluster, nil
	default:
		return "", NewError(KindInvalidRequest, "invalid type %q; must be 'panel' or 'cluster'", s)
	}
}

// DeviceRef identifies a panel or a cluster.
type DeviceRef struct {
	Kind DeviceKind `json:"type"`
	ID   string     `json:"id"`
}

// Key returns a canonical string key for indexing this device in stores.
func (r DeviceRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

// Location is where an asset is installed. Only Latitude/Longitude feed the forecast.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	City      string  `json:"city,omitempty"`
	District  string  `json:"district,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// Panel is a single solar panel.
type Panel struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId"`
	Name          string    `json:"name,omitempty"`
	PowerRatingW  float64   `json:"powerRating"`
	EfficiencyPct float64   `json:"efficiency"`
	Location      *Location `json:"location,omitempty"`
	ClusterID     string    `json:"clusterId,omitempty"`
}

// Inverter is shared by reference across clusters.
type Inverter struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	EfficiencyPct *float64 `json:"efficiency,omitempty"`
	CapacityKW    float64  `json:"capacity,omitempty"`
}

// Cluster groups panels behind one inverter. Member panels reference it by ClusterID.
type Cluster struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"ownerId"`
	Name     string    `json:"name,omitempty"`
	Location *Location `json:"location,omitempty"`
	Inverter *Inverter `json:"inverter,omitempty"`
}

// DailyEnergyTotal is one cached (device, day) energy figure.
type DailyEnergyTotal struct {
	ID             string     `json:"id,omitempty"`
	DeviceKind     DeviceKind `json:"deviceKind"`
	DeviceID       string     `json:"deviceId"`
	Date           string     `json:"date"` // YYYY-MM-DD
	TotalEnergyKWh float64    `json:"totalEnergy_kwh"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Ref returns the device the total belongs to.
func (t DailyEnergyTotal) Ref() DeviceRef {
	return DeviceRef{Kind: t.DeviceKind, ID: t.DeviceID}
}

// CapacityParameters are the sizing and siting inputs of one provider call.
type CapacityParameters struct {
	CapacityKWp float64 `json:"capacity_kwp"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// DailyTotal is one row of the engine's answer.
type DailyTotal struct {
	Date           string  `json:"date"`
	TotalEnergyKWh float64 `json:"totalEnergy_kwh"`
}

// Caller is the authenticated principal issuing a request.
type Caller struct {
	ID    string
	Admin bool
}
