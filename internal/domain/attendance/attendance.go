// Package attendance computes who has and has not submitted their daily
// record, for a single day or rolled up over a range of days.
package attendance

import (
	"context"
	"time"

	"github.com/okian/larkgate/internal/domain/types"
)

// RosterEntry is one person expected to submit a daily record.
type RosterEntry struct {
	Name string
	// ExternalID is the platform user id; may be filled in lazily.
	ExternalID string
	// OnLeave excludes the person from every check.
	OnLeave bool
	// ExceptionWeekdays are days on which the person is exempt.
	ExceptionWeekdays types.WeekdaySet
}

// FillRecord is evidence that a person submitted an entry on Date.
type FillRecord struct {
	PersonName string
	ExternalID string
	Date       time.Time
}

// MissingPerson is a roster member without a record for the day.
// ExternalID is empty when no addressable id could be resolved.
type MissingPerson struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}

// Result is the outcome of a single-day check.
//
// Filled, NotFilled, ExceptionDay and OnLeave are pairwise disjoint.
// LeaveFromCalendar is the subset of OnLeave moved out of NotFilled by the
// leave resolver.
type Result struct {
	Date                time.Time       `json:"date"`
	Filled              []string        `json:"filled"`
	NotFilled           []MissingPerson `json:"not_filled"`
	OnLeave             []string        `json:"on_leave"`
	LeaveFromCalendar   []string        `json:"leave_from_calendar,omitempty"`
	ExceptionDay        []string        `json:"exception_day"`
	IsHoliday           bool            `json:"is_holiday"`
	FillRate            float64         `json:"fill_rate"`
	UnmatchedSubmitters []string        `json:"unmatched_submitters,omitempty"`
}

// AllFilled reports whether nobody expected is missing.
func (r *Result) AllFilled() bool { return len(r.NotFilled) == 0 }

// PersonTally counts filled days for one person across a range.
type PersonTally struct {
	Name          string `json:"name"`
	DaysFilled    int    `json:"days_filled"`
	TotalWorkDays int    `json:"total_work_days"`
}

// RangeSummary rolls single-day results up over an inclusive date range.
type RangeSummary struct {
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	TotalWorkDays int           `json:"total_work_days"`
	Days          []*Result     `json:"days"`
	Tallies       []PersonTally `json:"tallies"`
	Perfect       []PersonTally `json:"perfect"`
	Partial       []PersonTally `json:"partial"`
	Never         []PersonTally `json:"never"`
	PerfectRate   float64       `json:"perfect_rate"`
}

// RecordSource returns the fill records whose recorded time lies in [from, to].
type RecordSource interface {
	FillRecords(ctx context.Context, from, to time.Time) ([]FillRecord, error)
}

// IDDirectory maps person names to platform user ids. Used to give missing
// people an addressable id when the roster does not carry one.
type IDDirectory interface {
	ExternalIDs(ctx context.Context) (map[string]string, error)
}

// HolidayCalendar decides whether a date is a non-working day. Implementations
// fall back to a weekend check when their data source is unavailable.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, date time.Time) bool
}

// LeaveResolver reports, per external id, whether that person has an
// approved leave covering date. Unknown or failed lookups map to false.
type LeaveResolver interface {
	ResolveBatch(ctx context.Context, externalIDs []string, date time.Time) map[string]bool
}

// RosterSource supplies the roster at aggregation time.
type RosterSource interface {
	Roster(ctx context.Context) ([]RosterEntry, error)
}

// StaticRoster is a fixed roster loaded from configuration.
type StaticRoster []RosterEntry

// Roster returns a copy of the configured entries.
func (s StaticRoster) Roster(context.Context) ([]RosterEntry, error) {
	out := make([]RosterEntry, len(s))
	copy(out, s)
	return out, nil
}

// WeekendCalendar treats only Saturdays and Sundays as holidays.
type WeekendCalendar struct{}

// IsHoliday reports whether date is a weekend day.
func (WeekendCalendar) IsHoliday(_ context.Context, date time.Time) bool {
	return types.IsWeekend(date)
}
