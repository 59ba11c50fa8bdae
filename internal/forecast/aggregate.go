package forecast

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrovoleh/solar-forecast/internal/common"
)

// DefaultCadence is the sample spacing assumed when a series does not carry one.
const DefaultCadence = 15 * time.Minute

// Sample is one predicted power reading.
type Sample struct {
	Time    time.Time `json:"datetime"`
	PowerKW float64   `json:"power_kw"`
}

// DailyPrediction is one provider-side daily energy figure.
type DailyPrediction struct {
	Date      string  `json:"date"`
	EnergyKWh float64 `json:"pred_kWh"`
}

// Series is a provider answer: either sub-daily power samples at a fixed
// cadence, or energy already aggregated per day.
type Series struct {
	Provider string            `json:"provider"`
	Cadence  time.Duration     `json:"-"`
	Samples  []Sample          `json:"samples,omitempty"`
	Daily    []DailyPrediction `json:"daily,omitempty"`
}

// DailyEnergy reduces the series to kWh per calendar day, keeping only days in keep.
// Samples integrate as power_kw * cadence_hours; daily predictions pass through.
func (s Series) DailyEnergy(keep map[string]struct{}) map[string]float64 {
	cadence := s.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	hours := decimal.NewFromFloat(cadence.Hours())

	acc := make(map[string]decimal.Decimal)
	for _, smp := range s.Samples {
		day := common.FormatDay(smp.Time)
		if _, ok := keep[day]; !ok {
			continue
		}
		acc[day] = acc[day].Add(decimal.NewFromFloat(smp.PowerKW).Mul(hours))
	}
	for _, d := range s.Daily {
		if _, ok := keep[d.Date]; !ok {
			continue
		}
		acc[d.Date] = acc[d.Date].Add(decimal.NewFromFloat(d.EnergyKWh))
	}

	out := make(map[string]float64, len(acc))
	for day, v := range acc {
		out[day] = v.InexactFloat64()
	}
	return out
}

// SortedTotals renders a date->kWh map as rows ordered by date ascending.
func SortedTotals(totals map[string]float64) []DailyTotal {
	rows := make([]DailyTotal, 0, len(totals))
	for day, kwh := range totals {
		rows = append(rows, DailyTotal{Date: day, TotalEnergyKWh: kwh})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}
