package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FinSignal/pkg/logger"
)

var (
	// ErrJobRunning is returned by RunNow when the job is already executing.
	ErrJobRunning = errors.New("job already running")
	ErrUnknownJob = errors.New("unknown job")
)

type jobState struct {
	job     Job
	running atomic.Bool
	runs    atomic.Int64
	fails   atomic.Int64
	skipped atomic.Int64

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
}

// Scheduler runs registered jobs on fixed intervals. Each job runs at most
// once at a time within the process and, with a Locker, across replicas.
type Scheduler struct {
	logger    *logger.Logger
	locker    Locker
	observer  Observer
	jobs      map[string]*jobState
	order     []string
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
}

// Option configures Scheduler.
type Option func(*Scheduler)

// WithLocker enables distributed locking of job runs.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithObserver reports job failures and durations.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithKeyPrefix sets the lock key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Scheduler) { s.keyPrefix = prefix }
}

// New creates a scheduler.
func New(lgr *logger.Logger, opts ...Option) *Scheduler {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	s := &Scheduler{
		logger:    lgr,
		jobs:      make(map[string]*jobState),
		keyPrefix: "finsignal:job",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJobs registers multiple jobs.
func (s *Scheduler) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		s.RegisterJob(job)
	}
}

// RegisterJob registers a single job. Jobs registered after Start are ignored.
func (s *Scheduler) RegisterJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Warn("job registration ignored, scheduler running", logger.String("job", job.Name()))
		return
	}
	if _, exists := s.jobs[job.Name()]; exists {
		s.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	s.jobs[job.Name()] = &jobState{job: job}
	s.order = append(s.order, job.Name())
	s.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.Duration("interval", job.Interval()))
}

// Start launches one loop per job. The first run of every job is immediate.
func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("scheduler already running")
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(parent)

	for _, name := range s.order {
		st := s.jobs[name]
		s.wg.Add(1)
		go s.loop(st)
	}
	s.logger.Info("scheduler started", logger.Int("jobs", len(s.order)))
	return nil
}

// Stop cancels all loops and waits for in-flight runs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.logger.Info("stopping scheduler...")
	s.cancel()
	s.mu.Unlock()

	if err := s.waitForWg(ctx); err != nil {
		s.logger.Warn("timeout waiting for jobs", logger.Error(err))
		return err
	}
	s.logger.Info("scheduler stopped gracefully")
	return nil
}

func (s *Scheduler) waitForWg(ctx context.Context) error {
	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		return nil
	}
}

func (s *Scheduler) loop(st *jobState) {
	defer s.wg.Done()
	interval := st.job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	s.execute(s.ctx, st)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.execute(s.ctx, st)
		}
	}
}

// RunNow executes a registered job immediately, subject to the same guards.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	st, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownJob, name)
	}
	if !s.execute(ctx, st) {
		return ErrJobRunning
	}
	return nil
}

// execute runs the job once unless it is already running here or holds the
// distributed lock elsewhere. It reports whether the job was started.
func (s *Scheduler) execute(ctx context.Context, st *jobState) bool {
	name := st.job.Name()
	if !st.running.CompareAndSwap(false, true) {
		st.skipped.Add(1)
		s.logger.Debug("job still running, skipping", logger.String("job", name))
		return false
	}
	defer st.running.Store(false)

	if s.locker != nil && !isLocal(st.job) {
		key := s.lockKey(name)
		ok, err := s.locker.TryLock(ctx, key, lockTTL(st.job.Interval()))
		switch {
		case err != nil:
			s.logger.Warn("job lock failed, running unlocked", logger.String("job", name), logger.Error(err))
		case !ok:
			st.skipped.Add(1)
			s.logger.Debug("job locked by another instance", logger.String("job", name))
			return false
		default:
			defer s.unlock(ctx, name, key)
		}
	}

	start := time.Now()
	err := s.safeRun(ctx, st.job)
	elapsed := time.Since(start)

	st.runs.Add(1)
	st.mu.Lock()
	st.lastRun = start
	st.lastErr = ""
	if err != nil {
		st.lastErr = err.Error()
	}
	st.mu.Unlock()

	if s.observer != nil {
		s.observer.RecordLatency("job_"+name, elapsed.Seconds())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		st.fails.Add(1)
		if s.observer != nil {
			s.observer.RecordError("job_" + name)
		}
		s.logger.Error("job failed",
			logger.String("job", name),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return true
	}
	s.logger.Debug("job finished", logger.String("job", name), logger.Duration("elapsed", elapsed))
	return true
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

// Stats returns per-job counters in registration order.
func (s *Scheduler) Stats() []JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStats, 0, len(s.order))
	for _, name := range s.order {
		st := s.jobs[name]
		st.mu.Lock()
		out = append(out, JobStats{
			Name:      name,
			Interval:  st.job.Interval(),
			Runs:      st.runs.Load(),
			Failures:  st.fails.Load(),
			Skipped:   st.skipped.Load(),
			Running:   st.running.Load(),
			LastRun:   st.lastRun,
			LastError: st.lastErr,
		})
		st.mu.Unlock()
	}
	return out
}

func (s *Scheduler) lockKey(name string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, name)
}

// unlock releases the job lock once the run returns. A cancelled run context
// must not leave the key held until the TTL.
func (s *Scheduler) unlock(ctx context.Context, name, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.locker.Unlock(ctx, key); err != nil {
		s.logger.Warn("job unlock failed", logger.String("job", name), logger.Error(err))
	}
}

func isLocal(job Job) bool {
	l, ok := job.(LocalJob)
	return ok && l.Local()
}

// lockTTL bounds how long a crashed holder blocks other replicas. Normal runs
// release the lock when they return.
func lockTTL(interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Minute
	}
	return interval
}
