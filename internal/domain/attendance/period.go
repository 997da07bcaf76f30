package attendance

import (
	"time"

	"github.com/okian/larkgate/internal/domain/types"
)

// monthCloseDay is the day of month on which a reporting month ends.
const monthCloseDay = 27

// MonthPeriod returns the reporting month labelled year/month: from the 28th
// of the previous calendar month to the 27th of month, both inclusive.
func MonthPeriod(year int, month time.Month, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	end = time.Date(year, month, monthCloseDay, 0, 0, 0, 0, loc)
	start = time.Date(year, month-1, monthCloseDay+1, 0, 0, 0, 0, loc)
	return start, end
}

// MonthPeriodFor returns the reporting month that contains date.
func MonthPeriodFor(date time.Time) (start, end time.Time) {
	y, m, d := date.Date()
	if d > monthCloseDay {
		m++
	}
	return MonthPeriod(y, m, date.Location())
}

// WeekPeriod returns Monday through Sunday of the week containing date.
func WeekPeriod(date time.Time) (start, end time.Time) {
	day := types.StartOfDay(date)
	offset := (int(day.Weekday()) + 6) % 7
	start = day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}
