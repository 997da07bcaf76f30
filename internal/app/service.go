// Package service assembles the bot: the dedupe store and task queue behind
// the webhook gate, the workers that act on accepted events and the
// scheduled attendance jobs.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/larkgate/internal/adapters/holiday"
	"github.com/okian/larkgate/internal/adapters/lark"
	eventqueue "github.com/okian/larkgate/internal/adapters/mq/queue"
	workerpool "github.com/okian/larkgate/internal/adapters/mq/worker"
	"github.com/okian/larkgate/internal/adapters/repository"
	"github.com/okian/larkgate/internal/config"
	"github.com/okian/larkgate/internal/domain/attendance"
	"github.com/okian/larkgate/internal/domain/dedupe"
	"github.com/okian/larkgate/internal/domain/model"
	"github.com/okian/larkgate/internal/scheduler"
	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

// Service implements the dependencies required by the HTTP API.
type Service struct {
	dedupe.Deduper

	cfg    *config.Config
	loc    *time.Location
	now    func() time.Time
	logger logger.Logger

	rdb       goredis.UniversalClient
	ownsRedis bool
	queue     *eventqueue.InMemoryQueue
	workers   *workerpool.Pool
	clients   *lark.Pool
	larkOpts  []lark.Option
	static    *lark.Client
	holidays  attendance.HolidayCalendar
	sched     *scheduler.Scheduler

	mu      sync.Mutex
	apps    map[string]*appContext
	started bool
}

// New builds a stopped Service from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		loc:    cfg.Location(),
		now:    time.Now,
		logger: logger.Get().Named("service"),
		apps:   make(map[string]*appContext),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initDeduper(ctx); err != nil {
		return nil, err
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.Queue.Capacity))
	s.workers = workerpool.NewPool(cfg.Worker.Count, s.queue, s,
		workerpool.WithTaskTimeout(cfg.Worker.TaskTimeout))

	larkOpts := append([]lark.Option{
		lark.WithBaseURL(cfg.Lark.BaseURL),
		lark.WithTimeout(cfg.Lark.Timeout),
	}, s.larkOpts...)
	s.clients = lark.NewPool(larkOpts...)
	if cfg.Lark.AppID != "" {
		s.static = lark.New(cfg.Lark.AppID, cfg.Lark.AppSecret, larkOpts...)
		s.clients.Put(s.static)
	}

	if s.holidays == nil {
		s.holidays = holiday.New(
			holiday.WithBaseURL(cfg.Holiday.APIURL),
			holiday.WithTimeout(cfg.Holiday.Timeout),
			holiday.WithCacheSize(cfg.Holiday.CacheSize),
		)
	}

	if err := s.initScheduler(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initDeduper(ctx context.Context) error {
	memory := dedupe.NewInMemoryDeduper(
		dedupe.WithTTL(s.cfg.Dedupe.TTL),
		dedupe.WithMaxSize(s.cfg.Dedupe.MaxSize),
	)
	if s.cfg.Dedupe.Backend != config.BackendRedis {
		s.Deduper = memory
		return nil
	}

	if s.rdb == nil {
		rc := s.cfg.Dedupe.Redis
		rdb, err := repository.Dial(ctx, repository.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		if err != nil {
			// A process-local store still gives at-most-once per instance.
			s.logger.Warn(ctx, "redis unreachable, using in-memory dedupe", logger.Error(err))
			s.Deduper = memory
			return nil
		}
		s.rdb = rdb
		s.ownsRedis = true
	}
	s.Deduper = repository.NewRedisDeduper(s.rdb,
		repository.WithKeyPrefix(s.cfg.Dedupe.Redis.Prefix),
		repository.WithTTL(s.cfg.Dedupe.TTL),
		repository.WithFallback(memory),
	)
	return nil
}

func (s *Service) initScheduler() error {
	s.sched = scheduler.New(
		scheduler.WithLocation(s.cfg.SchedulerLocation()),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)
	s.sched.Handle(scheduler.KindDayCheck, s.runDayCheck)
	s.sched.Handle(scheduler.KindRangeSummary, s.runRangeSummary)
	s.sched.Handle(scheduler.KindSendBatch, s.runSendBatch)

	for _, job := range s.cfg.Scheduler.Jobs {
		if err := s.sched.Add(job); err != nil {
			return fmt.Errorf("service.init_scheduler: %w", err)
		}
	}
	return nil
}

// Start launches workers and, when enabled, the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.workers.Start(ctx)
	if s.cfg.Scheduler.Enabled {
		s.sched.Start(ctx)
	}
	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.workers.Size()),
		logger.Int("queue_capacity", s.cfg.Queue.Capacity),
		logger.String("dedupe_backend", s.cfg.Dedupe.Backend),
		logger.Bool("scheduler", s.cfg.Scheduler.Enabled),
	)
	return nil
}

// Stop halts the scheduler and drains queued tasks before returning.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping service")

	var firstErr error
	if err := s.sched.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := s.workers.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.ownsRedis {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.started = false
	s.logger.Info(ctx, "service stopped")
	return firstErr
}

// Submit hands an accepted task to the worker pool without blocking.
func (s *Service) Submit(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam
	return s.queue.Enqueue(ctx, t)
}

// DedupeTTL is the retention window passed to CleanupExpired.
func (s *Service) DedupeTTL() time.Duration { return s.cfg.Dedupe.TTL }

// WebhookNamespace prefixes synthesized ids on the static webhook route.
func (s *Service) WebhookNamespace() string { return s.cfg.Lark.WebhookNamespace }

// Scheduler exposes the job scheduler for introspection.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.sched }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	ctx := context.Background()
	size := s.Size()
	metrics.UpdateDedupeSize(size)
	return map[string]interface{}{
		"started":        started,
		"workers":        s.workers.Size(),
		"tasksProcessed": s.workers.Processed(),
		"queueLength":    s.queue.Len(ctx),
		"queueCapacity":  s.cfg.Queue.Capacity,
		"dedupeBackend":  s.cfg.Dedupe.Backend,
		"dedupeSize":     size,
		"scheduler":      s.sched.Status(),
	}
}
