package forecast

import (
	"time"

	"github.com/petrovoleh/solar-forecast/internal/common"
)

// DefaultHorizonDays is how far past today a window may reach.
const DefaultHorizonDays = 13

// EarliestDate is the first day the engine forecasts or stores.
var EarliestDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// DateRangePolicy bounds requested windows to [Earliest, today+HorizonDays].
type DateRangePolicy struct {
	Earliest    time.Time
	HorizonDays int
	Zone        *time.Location
	Now         func() time.Time
}

// NewDateRangePolicy returns the production policy; "today" is taken in zone.
func NewDateRangePolicy(horizonDays int, zone *time.Location) DateRangePolicy {
	if zone == nil {
		zone = time.UTC
	}
	return DateRangePolicy{
		Earliest:    EarliestDate,
		HorizonDays: horizonDays,
		Zone:        zone,
		Now:         time.Now,
	}
}

// Today is the current calendar day as UTC midnight.
func (p DateRangePolicy) Today() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	zone := p.Zone
	if zone == nil {
		zone = time.UTC
	}
	return common.Midnight(now().In(zone))
}

// Latest is the last day a window may touch.
func (p DateRangePolicy) Latest() time.Time {
	return p.Today().AddDate(0, 0, p.HorizonDays)
}

// Validate checks both bounds independently; from <= to is not required.
func (p DateRangePolicy) Validate(from, to time.Time) error {
	earliest, latest := common.Midnight(p.Earliest), p.Latest()
	for _, b := range []struct {
		name string
		day  time.Time
	}{{"from", common.Midnight(from)}, {"to", common.Midnight(to)}} {
		if b.day.Before(earliest) {
			return NewError(KindOutOfRangeDate, "invalid date range: '%s' date %s is before %s",
				b.name, common.FormatDay(b.day), common.FormatDay(earliest))
		}
		if b.day.After(latest) {
			return NewError(KindOutOfRangeDate, "invalid date range: '%s' date %s is after %s (today + %d days)",
				b.name, common.FormatDay(b.day), common.FormatDay(latest), p.HorizonDays)
		}
	}
	return nil
}

// Allows is the boolean form of Validate.
func (p DateRangePolicy) Allows(from, to time.Time) bool {
	return p.Validate(from, to) == nil
}

// ParseWindow parses and validates a pair of date or date-time strings.
func (p DateRangePolicy) ParseWindow(from, to string) (time.Time, time.Time, error) {
	fromDay, err := common.ParseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, NewError(KindInvalidRequest, "invalid 'from': %v", err)
	}
	toDay, err := common.ParseDay(to)
	if err != nil {
		return time.Time{}, time.Time{}, NewError(KindInvalidRequest, "invalid 'to': %v", err)
	}
	if err := p.Validate(fromDay, toDay); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return fromDay, toDay, nil
}
