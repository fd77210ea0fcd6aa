package ptit

import (
	"fmt"
	"time"
)

// TimeLayout formats the from/to path segments: UTC with milliseconds, as
// produced by JavaScript's Date.toISOString.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the calendar-day format accepted on the command line.
const DateLayout = "2006-01-02"

// DayRange returns the bounds covering the whole days first through last in
// loc: local midnight of first to 23:59:59.999 of last, both in UTC.
func DayRange(first, last time.Time, loc *time.Location) (from, to string) {
	if loc == nil {
		loc = time.UTC
	}
	first, last = first.In(loc), last.In(loc)
	start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, 1).Add(-time.Millisecond)
	return start.UTC().Format(TimeLayout), end.UTC().Format(TimeLayout)
}

// ParseDayRange parses two DateLayout days in loc and returns their DayRange.
func ParseDayRange(first, last string, loc *time.Location) (from, to string, err error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(DateLayout, first, loc)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	end, err := time.ParseInLocation(DateLayout, last, loc)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if end.Before(start) {
		return "", "", fmt.Errorf("%w: %s is before %s", ErrInvalidRange, last, first)
	}
	from, to = DayRange(start, end, loc)
	return from, to, nil
}

// Week returns the Monday to Sunday week in loc that contains now.
func Week(now time.Time, loc *time.Location) (from, to string) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	monday := now.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))
	return DayRange(monday, monday.AddDate(0, 0, 6), loc)
}
