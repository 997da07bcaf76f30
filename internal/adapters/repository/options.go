package repository

import (
	"time"

	"github.com/okian/larkgate/internal/domain/dedupe"
	"github.com/okian/larkgate/pkg/logger"
)

// Option applies a configuration option to the RedisDeduper.
type Option func(*RedisDeduper)

// WithKeyPrefix namespaces event keys, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisDeduper) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the expiry applied to every recorded event id.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisDeduper) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithFallback replaces the local deduper consulted while Redis is unreachable.
func WithFallback(d dedupe.Deduper) Option {
	return func(s *RedisDeduper) {
		if d != nil {
			s.fallback = d
		}
	}
}

// WithOpTimeout bounds every Redis round trip.
func WithOpTimeout(timeout time.Duration) Option {
	return func(s *RedisDeduper) {
		if timeout > 0 {
			s.opTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *RedisDeduper) {
		if l != nil {
			s.logger = l
		}
	}
}
