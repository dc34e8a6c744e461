package extract

import (
	"time"

	"github.com/papercomputeco/tracks/pkg/storage"
)

const day = 24 * time.Hour

// GetAffectedUTCDays returns every UTC calendar day that intersects
// [from, to], including both endpoint days, in ascending order. It returns
// nil when to is before from.
func GetAffectedUTCDays(from, to time.Time) []string {
	if to.Before(from) {
		return nil
	}

	var days []string
	for d := dayStart(from); !d.After(to); d = d.Add(day) {
		days = append(days, d.Format(storage.DayLayout))
	}
	return days
}

// DayWindow returns the half-open [start, end) interval of a UTC day.
func DayWindow(d string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(storage.DayLayout, d, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(day), nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseInstant accepts RFC 3339 timestamps and bare UTC days. A bare day used
// as an upper bound covers the whole day.
func ParseInstant(v string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(storage.DayLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		t = t.Add(day)
	}
	return t, nil
}
