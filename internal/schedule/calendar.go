// Package schedule generates the bookable slot grid from business-hours rules.
//
// All returned instants are UTC. Day boundaries and business hours are
// evaluated in the configured location, so a grid generated for "2026-03-07"
// means 2026-03-07 in barbershop local time regardless of server timezone.
package schedule

import (
	"time"
)

type Calendar struct {
	loc         *time.Location
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
	interval    time.Duration
}

type Config struct {
	Location        *time.Location
	OpenHour        int
	OpenMinute      int
	CloseHour       int
	CloseMinute     int
	IntervalMinutes int
}

func New(cfg Config) *Calendar {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	interval := cfg.IntervalMinutes
	if interval <= 0 {
		interval = 30
	}
	return &Calendar{
		loc:         loc,
		openHour:    cfg.OpenHour,
		openMinute:  cfg.OpenMinute,
		closeHour:   cfg.CloseHour,
		closeMinute: cfg.CloseMinute,
		interval:    time.Duration(interval) * time.Minute,
	}
}

func (c *Calendar) Interval() time.Duration {
	return c.interval
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// DailySlots returns every slot start for the local calendar day containing t,
// from opening time up to (excluding) the closing boundary.
func (c *Calendar) DailySlots(t time.Time) []time.Time {
	year, month, day := t.In(c.loc).Date()
	open := time.Date(year, month, day, c.openHour, c.openMinute, 0, 0, c.loc)
	closing := time.Date(year, month, day, c.closeHour, c.closeMinute, 0, 0, c.loc)

	var slots []time.Time
	for cur := open; cur.Before(closing); cur = cur.Add(c.interval) {
		slots = append(slots, cur.UTC())
	}
	return slots
}

// NormalizeToSlot returns the grid slot equal to t, matching only against the
// grid of t's own local calendar day. Off-grid instants and instants outside
// business hours return false.
func (c *Calendar) NormalizeToSlot(t time.Time) (time.Time, bool) {
	for _, slot := range c.DailySlots(t) {
		if slot.Equal(t) {
			return slot, true
		}
	}
	return time.Time{}, false
}

// SequentialSlots returns the consecutive grid slots a service of the given
// duration occupies starting at startSlot. The result is shorter than
// ceil(duration/interval) when the span runs off the day's grid; callers must
// treat a short span as "does not fit".
func (c *Calendar) SequentialSlots(startSlot time.Time, durationMinutes int) []time.Time {
	needed := SlotCount(durationMinutes, int(c.interval/time.Minute))

	onGrid := make(map[int64]struct{})
	for _, slot := range c.DailySlots(startSlot) {
		onGrid[slot.Unix()] = struct{}{}
	}

	var span []time.Time
	for i := 0; i < needed; i++ {
		target := startSlot.Add(time.Duration(i) * c.interval)
		if _, ok := onGrid[target.Unix()]; !ok {
			break
		}
		span = append(span, target.UTC())
	}
	return span
}

// SlotCount is the number of slots a duration occupies at the given interval,
// always at least one.
func SlotCount(durationMinutes, intervalMinutes int) int {
	if intervalMinutes <= 0 {
		return 1
	}
	n := (durationMinutes + intervalMinutes - 1) / intervalMinutes
	if n < 1 {
		n = 1
	}
	return n
}

// LocalDayRange returns the UTC half-open range [start, end) of the local
// calendar day containing t.
func (c *Calendar) LocalDayRange(t time.Time) (time.Time, time.Time) {
	year, month, day := t.In(c.loc).Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, c.loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// ParseLocalDate parses a YYYY-MM-DD string as a date in the business
// location and returns its UTC day start.
func (c *Calendar) ParseLocalDate(s string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", s, c.loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.UTC(), nil
}

// SlotAtLocalTime resolves a HH:MM wall-clock time on the given local day to
// a grid slot.
func (c *Calendar) SlotAtLocalTime(day time.Time, hhmm string) (time.Time, bool) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	year, month, d := day.In(c.loc).Date()
	t := time.Date(year, month, d, clock.Hour(), clock.Minute(), 0, 0, c.loc).UTC()
	return c.NormalizeToSlot(t)
}

// MonthRange returns the UTC half-open range covering the local calendar
// month given as YYYY-MM.
func (c *Calendar) MonthRange(month string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", month, c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.UTC(), start.AddDate(0, 1, 0).UTC(), nil
}
