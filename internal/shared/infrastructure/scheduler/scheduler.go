// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

var (
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("job already registered")

	// ErrUnknownJob is returned when running a job that was never registered.
	ErrUnknownJob = errors.New("unknown job")
)

// JobFunc is a unit of scheduled work.
type JobFunc func(ctx context.Context) error

// JobStats summarizes a job's runs.
type JobStats struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entry    cron.EntryID
}

// Scheduler runs registered jobs. A job never overlaps with itself, and a
// panicking job is recovered and logged.
type Scheduler struct {
	cron    *cron.Cron
	metrics observability.Metrics
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	running bool

	statsMu sync.Mutex
	stats   map[string]*JobStats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records job timings.
func WithMetrics(m observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithJobTimeout bounds each job run. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// New creates a scheduler. Schedules use the standard five-field cron syntax
// plus descriptors such as "@every 5m" and "@daily".
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "scheduler")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		metrics: observability.NoopMetrics{},
		logger:  logger,
		jobs:    make(map[string]*job),
		stats:   make(map[string]*JobStats),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a named job. Invalid schedules are rejected here.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	j := &job{name: name, schedule: schedule, fn: fn}
	entry, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(s.jobContext(), j)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	j.entry = entry
	s.jobs[name] = j

	s.statsMu.Lock()
	s.stats[name] = &JobStats{Name: name, Schedule: schedule}
	s.statsMu.Unlock()

	s.logger.Debug("job registered", "job", name, "schedule", schedule)
	return nil
}

// Start begins running jobs on their schedules until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run executes a registered job immediately on the caller's goroutine.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Stats returns per-job statistics ordered by name.
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	next := make(map[string]time.Time, len(s.jobs))
	for name, j := range s.jobs {
		next[name] = s.cron.Entry(j.entry).Next
	}
	s.mu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	out := make([]JobStats, 0, len(s.stats))
	for name, st := range s.stats {
		cp := *st
		cp.NextRun = next[name]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx = observability.NewRequestContext(ctx, "")
	logger := s.logger.With("job", j.name, "correlation_id", observability.CorrelationIDFromContext(ctx))

	err := observability.TimeOperation(ctx, logger, s.metrics, "job."+j.name, func() error {
		return j.fn(ctx)
	})
	s.record(j.name, err)
	return err
}

func (s *Scheduler) record(name string, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st, ok := s.stats[name]
	if !ok {
		return
	}
	st.Runs++
	st.LastRun = time.Now()
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
}

// cronLogger adapts slog to cron.Logger. Cron's chatty info output goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
