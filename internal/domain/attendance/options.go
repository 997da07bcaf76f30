package attendance

import (
	"time"

	"github.com/okian/larkgate/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithLeaveResolver enables calendar leave reclassification of missing people.
func WithLeaveResolver(r LeaveResolver) Option {
	return func(a *Aggregator) {
		a.leave = r
	}
}

// WithIDDirectory enables external id lookup for roster entries without one.
func WithIDDirectory(d IDDirectory) Option {
	return func(a *Aggregator) {
		a.directory = d
	}
}

// WithHolidayCalendar replaces the weekend-only default.
func WithHolidayCalendar(c HolidayCalendar) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.holidays = c
		}
	}
}

// WithLocation sets the timezone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
