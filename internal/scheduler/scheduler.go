package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSpec       = "*/5 * * * *"
	DefaultRunTimeout = 30 * time.Minute
)

// Runner is a job the scheduler triggers on every tick.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	runner  Runner
	log     *slog.Logger
}

func New(ctx context.Context, spec string, timeout time.Duration, runner Runner, log *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}

	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	cronLog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &Scheduler{
		ctx:     ctx,
		cron:    c,
		spec:    spec,
		timeout: timeout,
		runner:  runner,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runBatch); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Stop halts the schedule and waits for a running batch to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runBatch() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	started := time.Now()

	report, err := s.runner.Run(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to complete batch",
			"error", err,
			"processed", report.Processed,
			"skipped", report.Skipped,
			"failed", report.Failed)
		return
	}

	s.log.InfoContext(ctx, "Batch is done",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", time.Since(started))
}
