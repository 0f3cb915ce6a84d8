// Package scheduler runs named periodic jobs.
//
// Each job runs at most once at a time: a cron tick or manual trigger that
// arrives while the job is in flight is coalesced, not queued. A job that
// returns an error wrapping ErrRetry is requeued after an exponential delay.
// Registering a name again replaces the previous registration.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rewired-gh/signalwatch/internal/logger"
)

// ErrRetry marks a job failure as transient.
var ErrRetry = errors.New("retry requested")

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Options controls retry requeueing.
type Options struct {
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

type entry struct {
	name     string
	interval time.Duration
	job      Job
	cronID   cron.EntryID

	running  atomic.Bool
	attempts int
	retry    *time.Timer
}

// stopRetry cancels a pending requeue. Callers hold the scheduler lock.
func (e *entry) stopRetry() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
}

// Scheduler owns the cron runner and the job registry.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	opts    Options
	jobs    map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(opts Options) *Scheduler {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Minute
	}
	if opts.RetryMaxDelay < opts.RetryDelay {
		opts.RetryMaxDelay = opts.RetryDelay
	}
	return &Scheduler{
		cron: cron.New(),
		opts: opts,
		jobs: make(map[string]*entry),
	}
}

// RegisterPeriodic schedules job every interval under name, replacing any
// job previously registered under the same name.
func (s *Scheduler) RegisterPeriodic(name string, interval time.Duration, job Job) error {
	if interval < time.Second {
		return fmt.Errorf("interval must be at least 1 second, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[name]
	if exists {
		s.cron.Remove(e.cronID)
		e.stopRetry()
		e.attempts = 0
	} else {
		e = &entry{name: name}
		s.jobs[name] = e
	}
	e.interval = interval
	e.job = job

	id, err := s.cron.AddFunc("@every "+interval.String(), func() { s.Trigger(name) })
	if err != nil {
		delete(s.jobs, name)
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	e.cronID = id

	if exists {
		logger.Info("Replaced periodic job %s (every %v)", name, interval)
	} else {
		logger.Info("Registered periodic job %s (every %v)", name, interval)
	}
	return nil
}

// Trigger runs the named job now. It returns false if the scheduler is not
// started, the job is unknown, or an instance is already running.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok || !s.started {
		s.mu.Unlock()
		return false
	}
	if !e.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		logger.Debug("Job %s already running; trigger coalesced", name)
		return false
	}
	s.wg.Add(1)
	ctx := s.ctx
	s.mu.Unlock()

	go s.run(ctx, e)
	return true
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer s.wg.Done()
	defer e.running.Store(false)

	s.mu.Lock()
	job := e.job
	s.mu.Unlock()

	err := job(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		e.attempts = 0
		e.stopRetry()
	case errors.Is(err, ErrRetry):
		if !s.started {
			return
		}
		e.attempts++
		delay := s.backoff(e.attempts)
		logger.Warn("Job %s failed (attempt %d), retrying in %v: %v", e.name, e.attempts, delay, err)
		e.stopRetry()
		name := e.name
		e.retry = time.AfterFunc(delay, func() { s.Trigger(name) })
	default:
		e.attempts = 0
		e.stopRetry()
		logger.Error("Job %s failed: %v", e.name, err)
	}
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.opts.RetryDelay
	for i := 1; i < attempt && d < s.opts.RetryMaxDelay; i++ {
		d *= 2
	}
	if d > s.opts.RetryMaxDelay {
		d = s.opts.RetryMaxDelay
	}
	return d
}

// Start begins firing periodic jobs. Jobs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for _, e := range s.jobs {
		e.stopRetry()
	}
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	s.wg.Wait()
}

// Running reports whether the named job is executing.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	return ok && e.running.Load()
}

// Next returns the next scheduled run of the named job, or the zero time.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.cronID).Next
}

// PendingRetries returns the consecutive retry count of the named job.
func (s *Scheduler) PendingRetries(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[name]; ok {
		return e.attempts
	}
	return 0
}
