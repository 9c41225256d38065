package subscription

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

type dueRunner interface {
	RunDue(ctx context.Context) (RunResult, error)
}

// Job runs the due-subscription pass on a cron schedule. A pass that is still
// running when the next tick fires makes that tick a no-op.
type Job struct {
	runner  dueRunner
	cron    *cron.Cron
	timeout time.Duration
	logger  *log.Logger
}

// NewJob validates spec (standard five-field or "@every" descriptors) and
// registers the pass. Each pass is bounded by timeout when positive.
func NewJob(runner dueRunner, spec string, timeout time.Duration, logger *log.Logger) (*Job, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	j := &Job{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger)), cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
	}
	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return nil, fmt.Errorf("subscription schedule %q: %w", spec, err)
	}
	return j, nil
}

// AddTask registers an extra maintenance task on the same scheduler. Its
// errors are logged under name.
func (j *Job) AddTask(spec, name string, task func(ctx context.Context) error) error {
	_, err := j.cron.AddFunc(spec, func() {
		ctx := context.Background()
		if j.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.timeout)
			defer cancel()
		}
		if err := task(ctx); err != nil {
			j.logger.Printf("subscription: task %s err=%v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("%s schedule %q: %w", name, spec, err)
	}
	return nil
}

func (j *Job) Start() {
	j.cron.Start()
	j.logger.Printf("subscription: job started")
}

// Stop halts the schedule and waits for a running pass until ctx is done.
func (j *Job) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Printf("subscription: job stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) run() {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := j.runner.RunDue(ctx)
	if err != nil {
		j.logger.Printf("subscription: run due err=%v", err)
		return
	}
	if res.Due > 0 {
		j.logger.Printf("subscription: run due=%d placed=%d failed=%d took=%s", res.Due, res.Placed, res.Failed, time.Since(start).Truncate(time.Millisecond))
	}
}
