// Package worker runs the periodic ranking aggregation in-process.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/practiceprep/backend/internal/models"
)

// Aggregator is the scheduled unit of work.
type Aggregator interface {
	RunScheduledAggregation(ctx context.Context) (*models.AggregationReport, error)
}

// RankingScheduler triggers the aggregation on a fixed interval. Whether a
// period is actually due is decided by the aggregator, so ticking more often
// than weekly is harmless.
type RankingScheduler struct {
	sched      gocron.Scheduler
	aggregator Aggregator
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRankingScheduler creates a scheduler that ticks every interval, starting
// immediately once Start is called.
func NewRankingScheduler(aggregator Aggregator, interval time.Duration, logger *slog.Logger) (*RankingScheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &RankingScheduler{
		sched:      sched,
		aggregator: aggregator,
		interval:   interval,
		timeout:    interval,
		logger:     logger.With("component", "ranking_scheduler"),
		ctx:        ctx,
		cancel:     cancel,
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(w.tick),
		gocron.WithName("ranking_aggregation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("registering aggregation job: %w", err)
	}
	return w, nil
}

func (w *RankingScheduler) Start() {
	w.logger.Info("starting ranking scheduler", "interval", w.interval)
	w.sched.Start()
}

// Stop cancels an in-flight run and waits for the scheduler to drain.
func (w *RankingScheduler) Stop() error {
	w.cancel()
	if err := w.sched.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	w.logger.Info("ranking scheduler stopped")
	return nil
}

func (w *RankingScheduler) tick() {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	start := time.Now()
	report, err := w.aggregator.RunScheduledAggregation(ctx)
	if err != nil {
		w.logger.Error("ranking aggregation failed", "error", err)
		return
	}

	if report.Weekly.Ran || report.Monthly.Ran {
		w.logger.Info("ranking aggregation completed",
			"weekly_key", report.Weekly.PeriodKey,
			"weekly_rows", report.Weekly.RowsWritten,
			"monthly_key", report.Monthly.PeriodKey,
			"monthly_rows", report.Monthly.RowsWritten,
			"duration", time.Since(start),
		)
		return
	}
	w.logger.Debug("no ranking period due")
}
