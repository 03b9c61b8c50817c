package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	calls int
}

func (l *mapLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *mapLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type countingObserver struct {
	errs atomic.Int64
}

func (o *countingObserver) RecordError(string)            { o.errs.Add(1) }
func (o *countingObserver) RecordLatency(string, float64) {}

func TestFirstRunIsImmediate(t *testing.T) {
	var runs atomic.Int64
	s := New(nil)
	s.RegisterJob(FuncJob{JobName: "tick", Every: time.Hour, Fn: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}})
	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestJobNeverOverlaps(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s := New(nil)
	s.RegisterJob(FuncJob{JobName: "slow", Every: time.Hour, Fn: func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}})
	require.NoError(t, s.Start(context.Background()))
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), ErrJobRunning)
	close(release)
	require.NoError(t, s.Stop(context.Background()))

	st := s.Stats()
	require.Len(t, st, 1)
	assert.Equal(t, int64(1), st[0].Runs)
	assert.Equal(t, int64(1), st[0].Skipped)
}

func TestFailuresAreCountedAndLoopContinues(t *testing.T) {
	obs := &countingObserver{}
	var runs atomic.Int64
	s := New(nil, WithObserver(obs))
	s.RegisterJob(FuncJob{JobName: "flaky", Every: 10 * time.Millisecond, Fn: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("still failing")
	}})
	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	assert.GreaterOrEqual(t, obs.errs.Load(), int64(3))
	assert.NotEmpty(t, s.Stats()[0].LastError)
}

func TestDistributedLockSkipsRun(t *testing.T) {
	locker := &mapLocker{held: map[string]bool{"finsignal:job:scan": true}}
	var runs atomic.Int64
	s := New(nil, WithLocker(locker))
	s.RegisterJob(FuncJob{JobName: "scan", Every: time.Hour, Fn: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}})

	assert.ErrorIs(t, s.RunNow(context.Background(), "scan"), ErrJobRunning)
	assert.Equal(t, int64(0), runs.Load())

	require.NoError(t, locker.Unlock(context.Background(), "finsignal:job:scan"))
	require.NoError(t, s.RunNow(context.Background(), "scan"))
	assert.Equal(t, int64(1), runs.Load())
}

func TestLockReleasedWhenRunReturns(t *testing.T) {
	locker := &mapLocker{held: map[string]bool{}}
	var runs atomic.Int64
	s := New(nil, WithLocker(locker))
	s.RegisterJob(FuncJob{JobName: "scan", Every: time.Hour, Fn: func(ctx context.Context) error {
		locker.mu.Lock()
		held := locker.held["finsignal:job:scan"]
		locker.mu.Unlock()
		assert.True(t, held, "lock must be held while the job runs")
		runs.Add(1)
		return errors.New("failed")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.RunNow(ctx, "scan"))
	cancel()
	require.NoError(t, s.RunNow(context.Background(), "scan"))

	assert.Equal(t, int64(2), runs.Load())
	assert.Empty(t, locker.held)
}

func TestLocalJobBypassesLocker(t *testing.T) {
	tests := []struct {
		name      string
		local     bool
		wantRuns  int64
		wantCalls int
	}{
		{name: "shared job honours foreign lock", local: false, wantRuns: 0, wantCalls: 1},
		{name: "process local job always runs", local: true, wantRuns: 1, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locker := &mapLocker{held: map[string]bool{"finsignal:job:tick": true}}
			var runs atomic.Int64
			s := New(nil, WithLocker(locker))
			s.RegisterJob(FuncJob{JobName: "tick", Every: time.Minute, ProcessLocal: tt.local, Fn: func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}})
			_ = s.RunNow(context.Background(), "tick")
			assert.Equal(t, tt.wantRuns, runs.Load())
			assert.Equal(t, tt.wantCalls, locker.calls)
			assert.True(t, locker.held["finsignal:job:tick"], "foreign lock must stay untouched")
		})
	}
}

func TestStopIsBoundedByContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{}, 1)
	s := New(nil)
	s.RegisterJob(FuncJob{JobName: "stuck", Every: time.Hour, Fn: func(ctx context.Context) error {
		started <- struct{}{}
		<-block
		return nil
	}})
	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestRunNowUnknownJob(t *testing.T) {
	assert.Error(t, New(nil).RunNow(context.Background(), "missing"))
}
