package scheduler

import (
	"context"
	"time"
)

// Job defines a periodic unit of work.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Interval returns the time between two runs.
	Interval() time.Duration

	// Run executes one iteration. Errors are logged and counted by the scheduler.
	Run(ctx context.Context) error
}

// LocalJob is implemented by jobs that own per-process state. Such jobs run
// on every replica and never take the distributed lock.
type LocalJob interface {
	Local() bool
}

// Locker provides a distributed mutual exclusion keyed by name.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Observer receives job outcomes.
type Observer interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// FuncJob adapts a function to Job.
type FuncJob struct {
	JobName string
	Every   time.Duration
	Fn      func(ctx context.Context) error
	// ProcessLocal skips the distributed lock for this job.
	ProcessLocal bool
}

func (f FuncJob) Name() string                  { return f.JobName }
func (f FuncJob) Interval() time.Duration       { return f.Every }
func (f FuncJob) Run(ctx context.Context) error { return f.Fn(ctx) }
func (f FuncJob) Local() bool                   { return f.ProcessLocal }

// JobStats is a snapshot of a job's counters.
type JobStats struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	Skipped   int64         `json:"skipped"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
}
