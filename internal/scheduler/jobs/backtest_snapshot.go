package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// Backtester runs a backtest against the loaded state
type Backtester interface {
	Backtest(ctx context.Context, req brain.BacktestRequest) (*brain.BacktestOutcome, error)
}

// BacktestSnapshotJob stores a full-history backtest after each refresh so the
// audit trail has one run per macro release
type BacktestSnapshotJob struct {
	backtester Backtester
	schedule   string
	logger     *logger.Logger
}

// NewBacktestSnapshotJob creates a new backtest snapshot job
func NewBacktestSnapshotJob(b Backtester, schedule string, log *logger.Logger) *BacktestSnapshotJob {
	if schedule == "" {
		schedule = "0 30 6 1 * *"
	}
	return &BacktestSnapshotJob{
		backtester: b,
		schedule:   schedule,
		logger:     log.WithComponent("jobs.backtest_snapshot"),
	}
}

// Name returns the job name
func (j *BacktestSnapshotJob) Name() string {
	return "backtest_snapshot"
}

// Schedule returns the cron schedule (default: 06:30 on the 1st, after the refresh)
func (j *BacktestSnapshotJob) Schedule() string {
	return j.schedule
}

// Run executes the backtest and persists it
func (j *BacktestSnapshotJob) Run(ctx context.Context) error {
	out, err := j.backtester.Backtest(ctx, brain.BacktestRequest{MacroBenchmark: true, Save: true})
	if err != nil {
		return fmt.Errorf("backtest snapshot: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":       out.Result.RunID,
		"months":       out.Result.Summary.TotalMonths,
		"total_return": out.Result.Summary.TotalReturn,
		"max_drawdown": out.Result.Summary.MaxDrawdown,
		"saved":        out.Saved,
	}).Info("Backtest snapshot completed")
	return nil
}
