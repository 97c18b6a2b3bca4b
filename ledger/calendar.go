package ledger

import "time"

// Calendar answers day-boundary questions in a fixed location.
// Now is injectable so tests can pin the current instant.
type Calendar struct {
	Location *time.Location
	Clock    func() time.Time
}

// NewCalendar returns a calendar in loc backed by the wall clock.
// A nil loc means the process local zone.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{Location: loc, Clock: time.Now}
}

// Now returns the current instant in the calendar's location.
func (c *Calendar) Now() time.Time {
	now := time.Now
	if c.Clock != nil {
		now = c.Clock
	}
	return now().In(c.location())
}

// StartOfToday returns local midnight of the current day.
func (c *Calendar) StartOfToday() time.Time {
	return c.StartOfDay(c.Now())
}

// StartOfDay returns local midnight of the day t falls on.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayDistance returns the number of calendar days from a's date to b's date.
// Times of day are ignored: 23:59 and 00:01 of the next day are one day apart.
func (c *Calendar) DayDistance(a, b time.Time) int {
	return int(civilDate(b, c.location()).Sub(civilDate(a, c.location())).Hours() / 24)
}

func (c *Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// civilDate maps t's local date onto UTC midnight so subtraction is free of DST shifts.
func civilDate(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
