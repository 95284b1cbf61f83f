package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddValidation(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Name: "", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: 0, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: time.Second}))
	require.NoError(t, s.Add(Job{Name: "a", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: time.Second, Run: noop}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	assert.Error(t, s.Add(Job{Name: "b", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Start(context.Background()))
}

func TestImmediateAndDeferredJobs(t *testing.T) {
	s := New()
	var immediate, deferred atomic.Int32
	require.NoError(t, s.Add(Job{Name: "now", Interval: time.Hour, Immediate: true,
		Run: func(context.Context) error { immediate.Add(1); return nil }}))
	require.NoError(t, s.Add(Job{Name: "later", Interval: time.Hour,
		Run: func(context.Context) error { deferred.Add(1); return nil }}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return immediate.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.Zero(t, deferred.Load())
}

func TestRunsRepeatWithoutOverlap(t *testing.T) {
	s := New()
	var running, maxRunning, runs atomic.Int32
	require.NoError(t, s.Add(Job{Name: "slow", Interval: 2 * time.Millisecond, Immediate: true,
		Run: func(ctx context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			runs.Add(1)
			time.Sleep(15 * time.Millisecond)
			return nil
		}}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestStatusRecordsFailuresAndPanics(t *testing.T) {
	s := New()
	var calls atomic.Int32
	require.NoError(t, s.Add(Job{Name: "flaky", Interval: 5 * time.Millisecond, Immediate: true,
		Run: func(context.Context) error {
			switch calls.Add(1) {
			case 1:
				return errors.New("boom")
			case 2:
				panic("bad")
			}
			return nil
		}}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	st := s.Status()
	require.Len(t, st, 1)
	assert.Equal(t, "flaky", st[0].Name)
	assert.GreaterOrEqual(t, st[0].Runs, int64(3))
	assert.Equal(t, int64(2), st[0].Failures)
	assert.False(t, st[0].Running)
}

func TestStopTimesOutOnStuckJob(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Add(Job{Name: "stuck", Interval: time.Hour, Immediate: true,
		Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}}))
	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Stop(ctx))

	close(release)
	require.NoError(t, s.Stop(context.Background()))
}
