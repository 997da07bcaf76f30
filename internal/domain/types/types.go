// Package types contains calendar primitives shared across the application.
package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and config format for calendar dates.
const DateLayout = "2006-01-02"

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "星期日": time.Sunday, "星期天": time.Sunday, "周日": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "星期一": time.Monday, "周一": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "星期二": time.Tuesday, "周二": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "星期三": time.Wednesday, "周三": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "星期四": time.Thursday, "周四": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "星期五": time.Friday, "周五": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "星期六": time.Saturday, "周六": time.Saturday,
}

// ParseWeekday accepts English names and abbreviations as well as the
// Chinese 星期X / 周X forms used in roster files.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return wd, nil
}

// WeekdaySet is a bitmask of weekdays.
type WeekdaySet uint8

// NewWeekdaySet builds a set from days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// ParseWeekdaySet parses a list of weekday names.
func ParseWeekdaySet(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, n := range names {
		wd, err := ParseWeekday(n)
		if err != nil {
			return 0, err
		}
		s = s.With(wd)
	}
	return s, nil
}

// With returns s plus d.
func (s WeekdaySet) With(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }

// Has reports whether d is in s.
func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

// Days lists the members of s from Sunday to Saturday.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last millisecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// ParseDate parses a DateLayout string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween returns every calendar day in [start, end], both inclusive.
// Returns nil when end precedes start.
func DaysBetween(start, end time.Time) []time.Time {
	start, end = StartOfDay(start), StartOfDay(end)
	if end.Before(start) {
		return nil
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// SameDay reports whether a and b share a calendar date in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
