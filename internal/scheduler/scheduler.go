// Package scheduler polls the spool and executes pending jobs.
//
// Every cycle lists the known namespaces and starts one pump per namespace.
// A pump moves records from pending to ongoing while the store allows it
// and launches an execution for each; successful executions end in done,
// failed ones stay in ongoing.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/metrics"
	"github.com/aatumaykin/jobspool/internal/spool"
	"golang.org/x/time/rate"
)

// DefaultCycleTimeout is the pause between two cycles.
const DefaultCycleTimeout = time.Second

// Runner executes a single job. executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, rec *job.Record) error
}

// Scheduler drives records through the spool.
type Scheduler struct {
	store        spool.Store
	runner       Runner
	logger       *logger.Logger
	metrics      *metrics.Metrics
	limiter      *rate.Limiter
	janitor      *Janitor
	cycleTimeout time.Duration

	nudge   chan struct{}
	wg      sync.WaitGroup
	loop    sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCycleTimeout sets the pause between cycles. Non-positive values keep the default.
func WithCycleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cycleTimeout = d
		}
	}
}

// WithSpawnRate limits process launches to perSecond across all namespaces.
// Zero or less means unlimited.
func WithSpawnRate(perSecond float64) Option {
	return func(s *Scheduler) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records cycle and job metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithJanitor runs j for as long as the scheduler is started.
func WithJanitor(j *Janitor) Option {
	return func(s *Scheduler) {
		s.janitor = j
	}
}

// New creates a scheduler over store that executes jobs with runner.
func New(store spool.Store, runner Runner, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		runner:       runner,
		logger:       log.Named("scheduler"),
		cycleTimeout: DefaultCycleTimeout,
		nudge:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a first cycle immediately and then one every cycle timeout
// until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	if s.janitor != nil {
		s.janitor.Start()
	}

	s.loop.Add(1)
	go s.run(s.ctx)

	s.logger.Info("scheduler started",
		logger.Field{Key: "cycle_timeout", Value: s.cycleTimeout.String()})
	return nil
}

// Stop stops the cycle loop and waits for running executions to finish.
// Running processes are not interrupted.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.loop.Wait()
	if s.janitor != nil {
		s.janitor.Stop()
	}
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

// IsStarted reports whether the cycle loop is running.
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Nudge requests an early cycle. Requests made while one is already
// queued are coalesced.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.loop.Done()

	ticker := time.NewTicker(s.cycleTimeout)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-s.nudge:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle starts one pump per known namespace and returns without waiting
// for them. Use Wait to block until they and their executions are done.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.metrics.RecordCycle()

	for _, ns := range s.store.Namespaces(ctx) {
		s.wg.Add(1)
		go s.pump(ctx, ns)
	}
}

// Wait blocks until every pump and execution started so far has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// pump moves pending records of ns to ongoing and launches them until the
// namespace has no pending work or reached its ongoing limit.
func (s *Scheduler) pump(ctx context.Context, ns string) {
	defer s.wg.Done()
	nsField := logger.Field{Key: "namespace", Value: ns}

	for ctx.Err() == nil {
		id, ok, err := s.store.NextPendingID(ctx, ns)
		if err != nil {
			s.logger.Error("failed to pick next pending job", err, nsField)
			return
		}
		if !ok {
			return
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}

		rec, err := s.store.Fetch(ctx, spool.StatePending, id, ns)
		if err != nil {
			s.logger.Error("failed to fetch pending job", err, nsField,
				logger.Field{Key: "job_id", Value: id})
			return
		}
		if rec == nil {
			// Claimed by a concurrent pump or discarded as corrupt.
			continue
		}

		// The record is out of pending now and must land somewhere.
		persistCtx := context.WithoutCancel(ctx)
		if err := s.store.Add(persistCtx, spool.StateOngoing, rec); err != nil {
			s.logger.Error("failed to mark job ongoing", err, nsField,
				logger.Field{Key: "job_id", Value: rec.ID})
			if err := s.store.Add(persistCtx, spool.StatePending, rec); err != nil {
				s.logger.Error("failed to return job to pending", err, nsField,
					logger.Field{Key: "job_id", Value: rec.ID})
			}
			return
		}
		s.metrics.RecordDequeued(ns)

		s.wg.Add(1)
		go s.execute(persistCtx, rec)
	}
}

// execute runs rec and moves it to done on success.
func (s *Scheduler) execute(ctx context.Context, rec *job.Record) {
	defer s.wg.Done()

	jobField := logger.Field{Key: "job_id", Value: rec.ID}
	nsField := logger.Field{Key: "namespace", Value: rec.Namespace}
	start := time.Now()
	s.metrics.JobStarted(rec.Namespace)

	status := metrics.StatusFailure
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorCtx(ctx, "job execution panic recovered", fmt.Errorf("panic: %v", r), jobField, nsField)
		}
		s.metrics.JobFinished(rec.Namespace, status, time.Since(start))
	}()

	s.logger.DebugCtx(ctx, "job started", jobField, nsField)

	if err := s.runner.Run(ctx, rec); err != nil {
		s.logger.ErrorCtx(ctx, "job failed, left in ongoing", err, jobField, nsField)
		return
	}
	status = metrics.StatusSuccess

	finished, err := s.store.Fetch(ctx, spool.StateOngoing, rec.ID, rec.Namespace)
	if err != nil {
		s.logger.ErrorCtx(ctx, "failed to fetch finished job", err, jobField, nsField)
		return
	}
	if finished == nil {
		s.logger.WarnCtx(ctx, "finished job vanished from ongoing", jobField, nsField)
		return
	}

	if err := s.store.Add(ctx, spool.StateDone, finished); err != nil {
		s.logger.ErrorCtx(ctx, "failed to mark job done", err, jobField, nsField)
		if err := s.store.Add(ctx, spool.StateOngoing, finished); err != nil {
			s.logger.ErrorCtx(ctx, "failed to return job to ongoing", err, jobField, nsField)
		}
		return
	}

	s.logger.InfoCtx(ctx, "job done", jobField, nsField,
		logger.Field{Key: "duration", Value: time.Since(start).String()})
}

// Schedule submits rec for execution. An empty recurrence becomes "once";
// recurring records are also copied into the recurrence spool.
func (s *Scheduler) Schedule(ctx context.Context, rec *job.Record) error {
	if rec.Recurrence == "" {
		rec.Recurrence = job.RecurrenceOnce
	}

	if rec.IsRecurring() {
		if err := s.store.Add(ctx, spool.StateRecurrence, rec.Clone()); err != nil {
			return fmt.Errorf("failed to store recurrence: %w", err)
		}
	}

	if err := s.store.Add(ctx, spool.StatePending, rec); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	s.logger.Info("job scheduled",
		logger.Field{Key: "job_id", Value: rec.ID},
		logger.Field{Key: "namespace", Value: rec.Namespace},
		logger.Field{Key: "recurrence", Value: rec.Recurrence})

	s.Nudge()
	return nil
}
