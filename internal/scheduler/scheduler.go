// Package scheduler fires attendance and broadcast jobs on cron or daily
// triggers.
//
// Triggers and handlers are registered separately: a Job names a Kind and
// the Scheduler dispatches it to whatever Handler was registered for that
// kind. A job that is still running when its next tick arrives is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

const defaultJobTimeout = 10 * time.Minute

// Scheduler states reported by Status.
const (
	StatusRunning        = "running"
	StatusStopped        = "stopped"
	StatusNotInitialized = "not_initialized"
)

// Handler runs one job.
type Handler func(ctx context.Context, job Job) error

// Status summarises the scheduler.
type Status struct {
	Status   string `json:"status"`
	Type     string `json:"type"`
	JobCount int    `json:"job_count"`
	Timezone string `json:"timezone"`
}

// JobInfo is a job as listed by Jobs.
type JobInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        Kind       `json:"kind"`
	Trigger     string     `json:"trigger"`
	Enabled     bool       `json:"enabled"`
	NextRunTime *time.Time `json:"next_run_time"`
	LastRunTime *time.Time `json:"last_run_time"`
	LastError   string     `json:"last_error,omitempty"`
}

type entry struct {
	job     Job
	cronID  cron.EntryID
	running atomic.Bool

	// guarded by Scheduler.mu
	lastRun time.Time
	lastErr string
}

// Scheduler owns a cron runner and the registered jobs.
type Scheduler struct {
	cron       *cron.Cron
	parser     cron.Parser
	loc        *time.Location
	jobTimeout time.Duration
	logger     logger.Logger

	mu       sync.RWMutex
	handlers map[Kind]Handler
	jobs     map[string]*entry
	order    []string
	base     context.Context
	running  bool
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		loc:        time.Local,
		jobTimeout: defaultJobTimeout,
		logger:     logger.Get().Named("scheduler"),
		handlers:   make(map[Kind]Handler),
		jobs:       make(map[string]*entry),
		base:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{log: s.logger}
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Location returns the scheduler timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Handle registers the handler for a job kind, replacing any previous one.
func (s *Scheduler) Handle(kind Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Add validates and registers a job. Disabled jobs are kept for listing
// but never scheduled.
func (s *Scheduler) Add(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	spec, err := job.Trigger.Spec()
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: job %s: %q: %w", ErrInvalidTrigger, job.ID, spec, err)
	}
	if job.Name == "" {
		job.Name = job.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	e := &entry{job: job}
	if job.Enabled {
		e.cronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(e) }))
	}
	s.jobs[job.ID] = e
	s.order = append(s.order, job.ID)
	metrics.UpdateSchedulerJobs(len(s.jobs))

	s.logger.Info(context.Background(), "job registered",
		logger.String("job", job.ID),
		logger.String("kind", string(job.Kind)),
		logger.String("schedule", spec),
		logger.Bool("enabled", job.Enabled),
	)
	return nil
}

// Start begins firing jobs. Jobs see ctx's values but not its cancellation;
// Stop ends them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.base = context.WithoutCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info(ctx, "scheduler started",
		logger.Int("jobs", len(s.order)),
		logger.String("timezone", s.loc.String()),
	)
}

// Stop halts the cron runner and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Status reports the scheduler state. A nil scheduler reports
// not_initialized.
func (s *Scheduler) Status() Status {
	if s == nil {
		return Status{Status: StatusNotInitialized, Type: "cron"}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := StatusStopped
	if s.running {
		st = StatusRunning
	}
	return Status{Status: st, Type: "cron", JobCount: len(s.jobs), Timezone: s.loc.String()}
}

// Jobs lists every registered job in registration order.
func (s *Scheduler) Jobs() []JobInfo {
	if s == nil {
		return []JobInfo{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.order))
	for _, id := range s.order {
		e := s.jobs[id]
		info := JobInfo{
			ID:        e.job.ID,
			Name:      e.job.Name,
			Kind:      e.job.Kind,
			Trigger:   e.job.Trigger.String(),
			Enabled:   e.job.Enabled,
			LastError: e.lastErr,
		}
		if e.job.Enabled {
			if next := s.nextRun(e); !next.IsZero() {
				info.NextRunTime = &next
			}
		}
		if !e.lastRun.IsZero() {
			last := e.lastRun
			info.LastRunTime = &last
		}
		out = append(out, info)
	}
	return out
}

func (s *Scheduler) nextRun(e *entry) time.Time {
	if ce := s.cron.Entry(e.cronID); ce.Valid() && !ce.Next.IsZero() {
		return ce.Next
	}
	// Not started yet: compute from the schedule directly.
	spec, err := e.job.Trigger.Spec()
	if err != nil {
		return time.Time{}
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now().In(s.loc))
}

// RunNow runs a job immediately, enabled or not, and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return s.run(ctx, e, "manual")
}

func (s *Scheduler) fire(e *entry) {
	s.mu.RLock()
	base := s.base
	s.mu.RUnlock()
	_ = s.run(base, e, "cron")
}

func (s *Scheduler) run(ctx context.Context, e *entry, trigger string) (err error) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.RecordSchedulerRun(e.job.ID, "skipped")
		s.logger.Warn(ctx, "job still running, skipped", logger.String("job", e.job.ID))
		return nil
	}
	defer e.running.Store(false)

	s.mu.RLock()
	h, ok := s.handlers[e.job.Kind]
	s.mu.RUnlock()

	runID := uuid.NewString()
	log := s.logger.Named(e.job.ID)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
			log.Error(ctx, "job failed", logger.String("run_id", runID), logger.Error(err))
		} else {
			log.Info(ctx, "job finished",
				logger.String("run_id", runID),
				logger.Duration("took", time.Since(started)),
			)
		}
		metrics.RecordSchedulerRun(e.job.ID, outcome)

		s.mu.Lock()
		e.lastRun = started
		e.lastErr = ""
		if err != nil {
			e.lastErr = err.Error()
		}
		s.mu.Unlock()
	}()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, e.job.Kind)
	}

	log.Info(ctx, "job started", logger.String("run_id", runID), logger.String("trigger", trigger))
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	return h(jobCtx, e.job)
}

// cronLogger routes robfig/cron's own messages into our logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(context.Background(), msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(context.Background(), msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
