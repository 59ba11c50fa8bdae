package common

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for cache keys and wire payloads.
const DateLayout = "2006-01-02"

// DateTimeLayout is the naive date-time format the legacy forecast model accepts.
const DateTimeLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	DateTimeLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseTimestamp parses the timestamp shapes seen on the wire. Naive values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseDay returns the calendar day written in s as UTC midnight.
// Any time-of-day component is ignored.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := ParseTimestamp(s); err == nil {
		return Midnight(ts), nil
	}
	// "2024-01-01 6:00" and friends: only the leading date token matters.
	if len(s) > len(DateLayout) {
		if ts, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q; use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", s)
}

// Midnight drops the clock part of t, keeping the calendar day as written in t's zone.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// DaysBetween lists every calendar day in [from, to], ascending.
// A reversed range yields no days.
func DaysBetween(from, to time.Time) []string {
	from, to = Midnight(from), Midnight(to)
	if from.After(to) {
		return nil
	}
	days := make([]string, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, FormatDay(d))
	}
	return days
}
