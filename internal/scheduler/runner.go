// Package scheduler runs the worker's periodic tasks on a cron and owns
// their lifecycle.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one periodic unit of work. Its context is cancelled when the
// runner is stopped and the grace period runs out.
type Task func(ctx context.Context) error

type Runner struct {
	cron   *cron.Cron
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: log.Sugar()}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules task under spec ("@every 30s", or a six-field cron line).
// A run that is still going when the next one is due is skipped.
func (r *Runner) Add(name, spec string, task Task) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r.ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := task(r.ctx); err != nil {
			r.log.Error("scheduled task failed",
				zap.String("task", name),
				zap.Duration("took", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		r.log.Debug("scheduled task done", zap.String("task", name), zap.Duration("took", time.Since(start)))
	})
}

func (r *Runner) Start() {
	r.log.Info("scheduler started", zap.Int("tasks", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop prevents new runs and waits for running tasks. If ctx expires first,
// the tasks' context is cancelled and Stop waits for them to return.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("scheduler stop timed out, cancelling running tasks")
		r.cancel()
		<-done.Done()
	}
	r.cancel()
	r.log.Info("scheduler stopped")
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
