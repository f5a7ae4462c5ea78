// Package timeutil provides timezone-aware calendar helpers.
// Stats windows (day, week, month) are always cut in one configured location,
// so every instance of the service agrees on where "today" starts.
package timeutil

import (
	"fmt"
	"time"
)

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Used when the tz database is unavailable on the host.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves a tz database name. "Asia/Almaty" falls back to a fixed
// zone so minimal containers without tzdata still work.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == AlmatyTZ.String() {
		return AlmatyTZ, nil
	}
	return nil, fmt.Errorf("timeutil: unknown location %q: %w", name, err)
}

// Calendar cuts days, weeks and months in a fixed location.
// Weeks start on Sunday.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a calendar for loc. A nil loc means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the calendar location.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// StartOfDay returns 00:00:00 of t's day.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	l := t.In(c.Location())
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.Location())
}

// StartOfWeek returns Sunday 00:00:00 of t's week.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// StartOfMonth returns the first day of t's month.
func (c Calendar) StartOfMonth(t time.Time) time.Time {
	l := t.In(c.Location())
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, c.Location())
}

// NextDay returns the start of the following day.
func (c Calendar) NextDay(t time.Time) time.Time {
	return c.StartOfDay(t).AddDate(0, 0, 1)
}

// NextWeek returns the start of the following week.
func (c Calendar) NextWeek(t time.Time) time.Time {
	return c.StartOfWeek(t).AddDate(0, 0, 7)
}

// NextMonth returns the start of the following month.
func (c Calendar) NextMonth(t time.Time) time.Time {
	return c.StartOfMonth(t).AddDate(0, 1, 0)
}

// IsSameDay checks if two times fall on the same calendar day.
func (c Calendar) IsSameDay(t1, t2 time.Time) bool {
	return c.StartOfDay(t1).Equal(c.StartOfDay(t2))
}

// FormatDate formats t as YYYY-MM-DD in the calendar location.
func (c Calendar) FormatDate(t time.Time) string {
	return t.In(c.Location()).Format("2006-01-02")
}
