package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"BTCSentinel/internal/collector"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/metrics"
	"BTCSentinel/internal/model"
)

// Appender tops up the local store with the latest closed bars.
type Appender interface {
	AppendLatest(ctx context.Context) (collector.Report, error)
}

// Signals produces the daily outputs.
type Signals interface {
	Snapshot(ctx context.Context) (model.ScoreSnapshot, error)
	Forecast(ctx context.Context) (model.ForecastResult, error)
}

// jobTimeout bounds a single job run.
const jobTimeout = 10 * time.Minute

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Appender Appender
	Signals  Signals
	Ctx      context.Context
	log      *logger.Entry
}

// NewScheduler creates a new Scheduler. Overlapping runs of the same job are
// skipped.
func NewScheduler(ctx context.Context, app Appender, sig Signals) *Scheduler {
	s := &Scheduler{
		Appender: app,
		Signals:  sig,
		Ctx:      ctx,
		log:      logger.GetLogger().WithComponent("scheduler"),
	}
	s.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	return s
}

// RegisterAll registers the append and daily jobs.
func (s *Scheduler) RegisterAll(appendCron, dailyCron string) error {
	if _, err := s.Cron.AddFunc(appendCron, s.appendTask); err != nil {
		return fmt.Errorf("register append task: %w", err)
	}
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes both jobs immediately (for RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.appendTask()
	s.dailyTask()
}

func (s *Scheduler) appendTask() {
	s.run("append", func(ctx context.Context) error {
		rep, err := s.Appender.AppendLatest(ctx)
		for _, y := range rep.Years {
			s.log.WithFields(logger.Fields{
				"run_id":   rep.RunID,
				"year":     y.Year,
				"inserted": y.Stats.Inserted,
				"updated":  y.Stats.Updated,
			}).Debug("append year done")
		}
		return err
	})
}

func (s *Scheduler) dailyTask() {
	s.run("daily", func(ctx context.Context) error {
		snap, err := s.Signals.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if snap.NoData {
			// nothing to forecast from
			return nil
		}
		f, err := s.Signals.Forecast(ctx)
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		s.log.WithFields(logger.Fields{
			"cycle":  snap.Cycle,
			"tier":   snap.Tier.Label,
			"season": f.Season,
			"target": f.TargetMedian,
		}).Info("daily signals")
		return nil
	})
}

func (s *Scheduler) run(job string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.Ctx, jobTimeout)
	defer cancel()

	log := s.log.WithField("job", job)
	start := time.Now()
	log.Info("job started")
	if err := fn(ctx); err != nil {
		metrics.JobRuns.WithLabelValues(job, "error").Inc()
		log.WithError(err).Error("job failed")
		return
	}
	metrics.JobRuns.WithLabelValues(job, "ok").Inc()
	logger.LogPerformanceEntry(log, job, time.Since(start), nil)
}

// cronLogger adapts the component entry to cron.Logger.
type cronLogger struct{ e *logger.Entry }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.e.WithFields(pairs(kv)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.e.WithFields(pairs(kv)).WithError(err).Error(msg)
}

func pairs(kv []interface{}) logger.Fields {
	f := logger.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
