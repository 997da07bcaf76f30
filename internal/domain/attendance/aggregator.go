package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/larkgate/internal/domain/types"
	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

// Aggregator partitions a roster into filled / not filled / excluded groups.
type Aggregator struct {
	records   RecordSource
	holidays  HolidayCalendar
	leave     LeaveResolver
	directory IDDirectory
	loc       *time.Location
	logger    logger.Logger
}

// NewAggregator creates an aggregator reading fill records from records.
func NewAggregator(records RecordSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		records:  records,
		holidays: WeekendCalendar{},
		loc:      time.Local,
		logger:   logger.Get().Named("attendance"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Location returns the timezone that defines calendar days.
func (a *Aggregator) Location() *time.Location { return a.loc }

// CheckDay evaluates a single calendar day.
func (a *Aggregator) CheckDay(ctx context.Context, roster []RosterEntry, date time.Time) (*Result, error) {
	start := time.Now()
	res, err := a.checkDay(ctx, roster, date)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.IsHoliday:
		outcome = "holiday"
	default:
		metrics.UpdateFillRate(res.FillRate)
	}
	metrics.RecordAggregation("day", outcome, float64(time.Since(start).Milliseconds()))
	return res, err
}

func (a *Aggregator) checkDay(ctx context.Context, roster []RosterEntry, date time.Time) (*Result, error) {
	day := types.StartOfDay(date.In(a.loc))
	res := &Result{
		Date:         day,
		Filled:       []string{},
		NotFilled:    []MissingPerson{},
		OnLeave:      []string{},
		ExceptionDay: []string{},
	}

	if a.holidays.IsHoliday(ctx, day) {
		res.IsHoliday = true
		res.FillRate = 1.0
		return res, nil
	}

	expected := make([]RosterEntry, 0, len(roster))
	rosterNames := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		rosterNames[p.Name] = struct{}{}
		switch {
		case p.OnLeave:
			res.OnLeave = append(res.OnLeave, p.Name)
		case p.ExceptionWeekdays.Has(day.Weekday()):
			res.ExceptionDay = append(res.ExceptionDay, p.Name)
		default:
			expected = append(expected, p)
		}
	}

	records, err := a.records.FillRecords(ctx, day, types.EndOfDay(day))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRecordQuery, day.Format(types.DateLayout), err)
	}

	submitted := make(map[string]struct{}, len(records))
	recordIDs := make(map[string]string, len(records))
	for _, r := range records {
		if !types.SameDay(day, r.Date) {
			continue
		}
		submitted[r.PersonName] = struct{}{}
		if r.ExternalID != "" {
			recordIDs[r.PersonName] = r.ExternalID
		}
	}
	res.UnmatchedSubmitters = a.unmatched(ctx, day, submitted, rosterNames)

	for _, p := range expected {
		if _, ok := submitted[p.Name]; ok {
			res.Filled = append(res.Filled, p.Name)
			continue
		}
		id := p.ExternalID
		if id == "" {
			id = recordIDs[p.Name]
		}
		res.NotFilled = append(res.NotFilled, MissingPerson{Name: p.Name, ExternalID: id})
	}

	a.resolveMissingIDs(ctx, res.NotFilled)
	a.applyLeave(ctx, res, day)

	res.FillRate = fillRate(len(res.Filled), len(res.NotFilled))
	return res, nil
}

// unmatched lists submitters that match no roster name. Matching stays exact;
// these are only surfaced so that typos in the roster can be spotted.
func (a *Aggregator) unmatched(ctx context.Context, day time.Time, submitted, roster map[string]struct{}) []string {
	var out []string
	for name := range submitted {
		if _, ok := roster[name]; !ok {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	a.logger.Warn(ctx, "fill records from people not on the roster",
		logger.String("date", day.Format(types.DateLayout)),
		logger.Strings("names", out),
	)
	return out
}

// resolveMissingIDs fills in external ids from the directory. People that
// still have no id stay in NotFilled without one.
func (a *Aggregator) resolveMissingIDs(ctx context.Context, missing []MissingPerson) {
	if a.directory == nil {
		return
	}
	need := false
	for _, m := range missing {
		if m.ExternalID == "" {
			need = true
			break
		}
	}
	if !need {
		return
	}

	ids, err := a.directory.ExternalIDs(ctx)
	if err != nil {
		a.logger.Warn(ctx, "external id lookup failed", logger.Error(err))
		return
	}
	for i := range missing {
		if missing[i].ExternalID == "" {
			missing[i].ExternalID = ids[missing[i].Name]
		}
	}
}

// applyLeave moves missing people with an approved leave covering day into
// OnLeave. People without an external id cannot be looked up and stay missing.
func (a *Aggregator) applyLeave(ctx context.Context, res *Result, day time.Time) {
	if a.leave == nil || len(res.NotFilled) == 0 {
		return
	}

	ids := make([]string, 0, len(res.NotFilled))
	for _, m := range res.NotFilled {
		if m.ExternalID != "" {
			ids = append(ids, m.ExternalID)
		}
	}
	if len(ids) == 0 {
		return
	}

	onLeave := a.leave.ResolveBatch(ctx, ids, day)
	kept := res.NotFilled[:0]
	for _, m := range res.NotFilled {
		if m.ExternalID != "" && onLeave[m.ExternalID] {
			res.OnLeave = append(res.OnLeave, m.Name)
			res.LeaveFromCalendar = append(res.LeaveFromCalendar, m.Name)
			continue
		}
		kept = append(kept, m)
	}
	res.NotFilled = kept
}

// fillRate is filled/(filled+missing), or 1.0 when nobody was expected.
func fillRate(filled, missing int) float64 {
	total := filled + missing
	if total == 0 {
		return 1.0
	}
	return float64(filled) / float64(total)
}

// CheckRange evaluates every day in [start, end] and tallies per person.
func (a *Aggregator) CheckRange(ctx context.Context, roster []RosterEntry, start, end time.Time) (*RangeSummary, error) {
	began := time.Now()
	sum, err := a.checkRange(ctx, roster, start, end)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordAggregation("range", outcome, float64(time.Since(began).Milliseconds()))
	return sum, err
}

func (a *Aggregator) checkRange(ctx context.Context, roster []RosterEntry, start, end time.Time) (*RangeSummary, error) {
	start = types.StartOfDay(start.In(a.loc))
	end = types.StartOfDay(end.In(a.loc))
	days := types.DaysBetween(start, end)
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange,
			start.Format(types.DateLayout), end.Format(types.DateLayout))
	}

	sum := &RangeSummary{Start: start, End: end, Days: make([]*Result, 0, len(days))}
	counts := make(map[string]int)
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := a.CheckDay(ctx, roster, day)
		if err != nil {
			return nil, err
		}
		sum.Days = append(sum.Days, res)
		if res.IsHoliday {
			continue
		}
		sum.TotalWorkDays++
		for _, name := range res.Filled {
			counts[name]++
		}
		for _, m := range res.NotFilled {
			if _, ok := counts[m.Name]; !ok {
				counts[m.Name] = 0
			}
		}
	}

	sum.Tallies = make([]PersonTally, 0, len(counts))
	for name, n := range counts {
		sum.Tallies = append(sum.Tallies, PersonTally{Name: name, DaysFilled: n, TotalWorkDays: sum.TotalWorkDays})
	}
	sort.Slice(sum.Tallies, func(i, j int) bool { return sum.Tallies[i].Name < sum.Tallies[j].Name })

	for _, t := range sum.Tallies {
		switch {
		case t.DaysFilled >= t.TotalWorkDays:
			sum.Perfect = append(sum.Perfect, t)
		case t.DaysFilled > 0:
			sum.Partial = append(sum.Partial, t)
		default:
			sum.Never = append(sum.Never, t)
		}
	}
	sort.SliceStable(sum.Partial, func(i, j int) bool { return sum.Partial[i].DaysFilled > sum.Partial[j].DaysFilled })

	if len(sum.Tallies) > 0 {
		sum.PerfectRate = float64(len(sum.Perfect)) / float64(len(sum.Tallies))
	}
	return sum, nil
}
