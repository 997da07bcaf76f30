package service

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/larkgate/internal/adapters/lark"
	"github.com/okian/larkgate/internal/domain/attendance"
	"github.com/okian/larkgate/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used to pick "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHolidayCalendar replaces the public holiday lookup.
func WithHolidayCalendar(c attendance.HolidayCalendar) Option {
	return func(s *Service) {
		if c != nil {
			s.holidays = c
		}
	}
}

// WithLarkOptions adds options to every platform client the service builds.
func WithLarkOptions(opts ...lark.Option) Option {
	return func(s *Service) {
		s.larkOpts = append(s.larkOpts, opts...)
	}
}

// WithRedisClient supplies an existing Redis client for the redis dedupe
// backend instead of dialing one from configuration.
func WithRedisClient(rdb goredis.UniversalClient) Option {
	return func(s *Service) {
		s.rdb = rdb
	}
}
