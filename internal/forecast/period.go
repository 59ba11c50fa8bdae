package forecast

import (
	"context"
	"strings"

	"github.com/petrovoleh/solar-forecast/internal/common"
)

// Period is a trailing summary window ending today.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts day, week or month in any case.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	default:
		return "", NewError(KindInvalidRequest, "invalid period %q; must be 'day', 'week', or 'month'", s)
	}
}

// LookbackDays is how many days before today the window starts.
func (p Period) LookbackDays() int {
	switch p {
	case PeriodWeek:
		return 6
	case PeriodMonth:
		return 29
	default:
		return 0
	}
}

// PeriodTotal is the summed energy over a trailing period.
type PeriodTotal struct {
	Period         Period  `json:"period"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	TotalEnergyKWh float64 `json:"totalEnergy_kwh"`
}

// GetPeriodTotal sums the daily totals over the trailing period ending today.
func (s *Service) GetPeriodTotal(ctx context.Context, caller Caller, ref DeviceRef, period string) (PeriodTotal, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return PeriodTotal{}, err
	}
	target, err := s.resolve(ctx, caller, ref)
	if err != nil {
		return PeriodTotal{}, err
	}

	to := s.policy.Today()
	from := to.AddDate(0, 0, -p.LookbackDays())
	if err := s.policy.Validate(from, to); err != nil {
		return PeriodTotal{}, err
	}
	params, err := target.Parameters()
	if err != nil {
		return PeriodTotal{}, err
	}

	rows, err := s.dailyTotals(ctx, target, params, from, to)
	if err != nil {
		return PeriodTotal{}, err
	}
	var sum float64
	for _, r := range rows {
		sum += r.TotalEnergyKWh
	}
	return PeriodTotal{
		Period:         p,
		From:           common.FormatDay(from),
		To:             common.FormatDay(to),
		TotalEnergyKWh: sum,
	}, nil
}
