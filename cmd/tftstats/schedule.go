package main

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"tftstats/internal/logging"
	"tftstats/internal/metrics"
)

// ScheduleCmd repeats collect on a cron schedule until interrupted.
type ScheduleCmd struct {
	Cron   string       `default:"@every 6h" help:"Cron expression or descriptor (@hourly, @every 6h)."`
	RunNow bool         `name:"run-now" help:"Start a run immediately instead of waiting for the first tick."`
	Flags  CollectFlags `embed:""`
}

func (c *ScheduleCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load(true, c.Flags.override())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := SetupSignalHandler(logger, nil)
	m := metrics.New()
	serveMetrics(ctx, cfg.MetricsAddr, m, logger)

	return runSchedule(ctx, c.Cron, c.RunNow, logger, func(ctx context.Context) {
		p := &pipeline{cfg: cfg, riotID: c.Flags.RiotID, logger: logger, metrics: m}
		if _, err := p.run(ctx); err != nil {
			logger.Error("Scheduled run failed", "error", err)
		}
	})
}

// runSchedule invokes job on every tick of spec until ctx is done, then
// waits for a running job to return. Overlapping ticks are skipped.
func runSchedule(ctx context.Context, spec string, runNow bool, logger *logging.Logger, job func(context.Context)) error {
	cl := cronLogger{logger: logger.With("component", "schedule")}
	sched := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)

	id, err := sched.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	})
	if err != nil {
		return errors.Wrapf(err, "invalid cron spec %q", spec)
	}

	sched.Start()
	entry := sched.Entry(id)
	logger.Info("Schedule started", "cron", spec, "next", entry.Next)

	// the immediate run goes through the same chain so a tick cannot overlap it
	var wg sync.WaitGroup
	if runNow {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry.WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	logger.Info("Schedule stopping, waiting for the running collection")
	<-sched.Stop().Done()
	wg.Wait()
	return nil
}

// cronLogger adapts the process logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
