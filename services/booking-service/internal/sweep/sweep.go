// Package sweep periodically moves elapsed CONFIRMED appointments to COMPLETED.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Completer is satisfied by *booking.Service.
type Completer interface {
	CompleteDue(ctx context.Context, limit int) (int, error)
}

type Config struct {
	// Schedule is a standard cron spec or descriptor such as "@every 1m".
	Schedule   string
	BatchSize  int
	MaxBatches int
	Timeout    time.Duration
}

type Worker struct {
	completer  Completer
	logger     *slog.Logger
	schedule   cron.Schedule
	batchSize  int
	maxBatches int
	timeout    time.Duration
}

func NewWorker(completer Completer, logger *slog.Logger, cfg Config) (*Worker, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("sweep: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return &Worker{
		completer:  completer,
		logger:     logger,
		schedule:   sched,
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatches,
		timeout:    cfg.Timeout,
	}, nil
}

// Run blocks until ctx is done. A sweep still running when the next tick
// fires makes that tick a no-op.
func (w *Worker) Run(ctx context.Context) {
	logger := cronLogger{w.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	c.Schedule(w.schedule, cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if _, err := w.RunOnce(runCtx); err != nil && ctx.Err() == nil {
			w.logger.Error("completion sweep failed", "err", err)
		}
	}))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// RunOnce completes due appointments batch by batch until a batch comes back
// short or MaxBatches is reached.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for range w.maxBatches {
		n, err := w.completer.CompleteDue(ctx, w.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.batchSize {
			break
		}
	}
	if total > 0 {
		w.logger.Info("appointments completed", "count", total)
	}
	return total, nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
