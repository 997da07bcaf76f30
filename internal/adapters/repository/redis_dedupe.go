// Package repository holds shared-state adapters. The Redis deduper lets
// several webhook instances agree on which event ids were already handled.
package repository

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/larkgate/internal/domain/dedupe"
	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

const (
	defaultKeyPrefix = "larkgate:event:"
	defaultOpTimeout = 500 * time.Millisecond
	pingTimeout      = 5 * time.Second
	scanBatch        = 500
)

// RedisConfig describes how to reach Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisDeduper implements dedupe.Deduper on Redis. Insert-if-absent is a
// single SET NX with the retention window as expiry, so it stays atomic
// across processes and Redis evicts expired ids by itself.
//
// While Redis is unreachable every call is served by a local in-memory
// deduper, which keeps the at-most-once guarantee per process.
type RedisDeduper struct {
	rdb       goredis.UniversalClient
	prefix    string
	ttl       time.Duration
	opTimeout time.Duration
	fallback  dedupe.Deduper
	logger    logger.Logger
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, cfg.Addr, err)
	}
	return rdb, nil
}

// NewRedisDeduper wraps an existing client.
func NewRedisDeduper(rdb goredis.UniversalClient, opts ...Option) *RedisDeduper {
	s := &RedisDeduper{
		rdb:       rdb,
		prefix:    defaultKeyPrefix,
		ttl:       dedupe.DefaultTTL,
		opTimeout: defaultOpTimeout,
		logger:    logger.Get().Named("dedupe.redis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = dedupe.NewInMemoryDeduper(dedupe.WithTTL(s.ttl))
	}
	return s
}

func (s *RedisDeduper) key(id string) string { return s.prefix + id }

func (s *RedisDeduper) degraded(ctx context.Context, op string, err error) {
	metrics.RecordErrorByComponent("dedupe", "redis_"+op)
	s.logger.Warn(ctx, "redis unavailable, using local dedupe", logger.String("op", op), logger.Error(err))
}

// SeenAndRecord returns true when id was already recorded.
func (s *RedisDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	created, err := s.rdb.SetNX(opCtx, s.key(id), time.Now().UnixMilli(), s.ttl).Result()
	if err != nil {
		s.degraded(ctx, "setnx", err)
		return s.fallback.SeenAndRecord(ctx, id)
	}
	if !created {
		return true
	}
	// An id accepted locally during an outage must still count as seen.
	return s.fallback.IsProcessed(ctx, id)
}

// IsProcessed reports whether id is recorded.
func (s *RedisDeduper) IsProcessed(ctx context.Context, id string) bool {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.rdb.Exists(opCtx, s.key(id)).Result()
	if err != nil {
		s.degraded(ctx, "exists", err)
		return s.fallback.IsProcessed(ctx, id)
	}
	return n > 0 || s.fallback.IsProcessed(ctx, id)
}

// MarkProcessed records id; an existing record keeps its original expiry.
func (s *RedisDeduper) MarkProcessed(ctx context.Context, id string) {
	_ = s.SeenAndRecord(ctx, id)
}

// Unrecord deletes id.
func (s *RedisDeduper) Unrecord(ctx context.Context, id string) {
	s.fallback.Unrecord(ctx, id)

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.rdb.Del(opCtx, s.key(id)).Err(); err != nil {
		s.degraded(ctx, "del", err)
	}
}

// CleanupExpired only prunes the local fallback; Redis expires keys itself.
func (s *RedisDeduper) CleanupExpired(ctx context.Context, ttl time.Duration) int {
	return s.fallback.CleanupExpired(ctx, ttl)
}

// Size counts the ids currently held under the key prefix plus any held
// locally. It scans the keyspace and is meant for metrics, not hot paths.
func (s *RedisDeduper) Size() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 10*s.opTimeout)
	defer cancel()

	var total int64
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		total++
	}
	if err := iter.Err(); err != nil {
		s.degraded(ctx, "scan", err)
	}
	return total + s.fallback.Size()
}

// Close releases the underlying client.
func (s *RedisDeduper) Close() error {
	return s.rdb.Close()
}
