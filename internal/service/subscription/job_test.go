package subscription

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type runnerFunc func(ctx context.Context) (RunResult, error)

func (f runnerFunc) RunDue(ctx context.Context) (RunResult, error) { return f(ctx) }

func TestNewJob_RejectsBadSchedule(t *testing.T) {
	_, err := NewJob(runnerFunc(func(context.Context) (RunResult, error) { return RunResult{}, nil }), "every hour", 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every hour")
}

func TestJob_RunBoundsPassWithTimeout(t *testing.T) {
	var deadline atomic.Bool
	job, err := NewJob(runnerFunc(func(ctx context.Context) (RunResult, error) {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		return RunResult{Due: 1, Placed: 1}, nil
	}), "@every 1h", time.Minute, nil)
	require.NoError(t, err)

	job.run()
	assert.True(t, deadline.Load())
}

func TestJob_RunSurvivesRunnerError(t *testing.T) {
	calls := 0
	job, err := NewJob(runnerFunc(func(context.Context) (RunResult, error) {
		calls++
		return RunResult{}, errors.New("list due carts")
	}), "@hourly", 0, nil)
	require.NoError(t, err)

	job.run()
	job.run()
	assert.Equal(t, 2, calls)
}

func TestJob_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	job, err := NewJob(runnerFunc(func(context.Context) (RunResult, error) { return RunResult{}, nil }), "@every 1h", 0, nil)
	require.NoError(t, err)

	job.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, job.Stop(ctx))
}

func TestJob_AddTask(t *testing.T) {
	job, err := NewJob(runnerFunc(func(context.Context) (RunResult, error) { return RunResult{}, nil }), "@hourly", 0, nil)
	require.NoError(t, err)

	require.Error(t, job.AddTask("not a schedule", "prune", func(context.Context) error { return nil }))

	var ran atomic.Int32
	require.NoError(t, job.AddTask("@daily", "prune", func(context.Context) error {
		ran.Add(1)
		return errors.New("db down")
	}))
	entries := job.cron.Entries()
	require.Len(t, entries, 2)
	entries[1].Job.Run()
	assert.Equal(t, int32(1), ran.Load())
}
