package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/ticketflow/pkg/lock"
	"github.com/BartekS5/ticketflow/pkg/models"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context, string) (*models.RunReport, error) {
	r.calls.Add(1)
	if r.err != nil {
		return &models.RunReport{Status: models.RunFailed}, r.err
	}
	return &models.RunReport{RunID: "r", Status: models.RunSucceeded}, nil
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, nil, Config{Interval: 10 * time.Millisecond, RunOnStart: true})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	n := runner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, runner.calls.Load(), "no runs after Stop")
}

func TestScheduler_FailuresDoNotStopTicking(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom")}
	s := New(runner, nil, Config{Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_SkipsTickWhenLockHeld(t *testing.T) {
	runner := &countingRunner{}
	locker := lock.NewLocal()
	unlock, err := locker.Lock(context.Background(), tickLockKey)
	require.NoError(t, err)

	s := New(runner, locker, Config{Interval: time.Hour, LockWait: 10 * time.Millisecond})
	s.tick(context.Background())
	assert.Zero(t, runner.calls.Load())

	unlock()
	s.tick(context.Background())
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, nil, Config{Interval: 5 * time.Millisecond, RunOnStart: true})

	for range 2 {
		require.NoError(t, s.Start(context.Background()))
		n := runner.calls.Load()
		assert.Eventually(t, func() bool { return runner.calls.Load() > n }, time.Second, 5*time.Millisecond)
		require.NoError(t, s.Stop(context.Background()))
	}
	assert.NoError(t, s.Stop(context.Background()), "stopping twice is a no-op")
}

func TestScheduler_StopAfterContextEnded(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, nil, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(stopCtx))
}
