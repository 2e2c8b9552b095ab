package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules the background sweeps (signal expiry, stale job reset,
// recompute backfill). Jobs receive the process base context so shutdown
// cancels in-flight work.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers a named job. A panicking sweep must not take down the
// scheduler, so every run goes through safeRun.
func (r *Runner) Add(spec, name string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		ctx := context.Background()
		var logger *zap.Logger
		if r != nil {
			if r.baseCtx != nil {
				ctx = r.baseCtx
			}
			logger = r.logger
		}
		safeRun(ctx, logger, name, job)
	})
}

// safeRun invokes job and converts a panic into a logged error.
func safeRun(ctx context.Context, logger *zap.Logger, name string, job func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil && logger != nil {
			logger.Error("cron job panicked",
				zap.String("job", name),
				zap.Any("panic", rec),
			)
		}
	}()
	job(ctx)
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
