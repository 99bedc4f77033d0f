package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// Refresher reloads macro data and replays detection
type Refresher interface {
	Current() (regime.Detection, error)
	Refresh(ctx context.Context) (*brain.RunResult, error)
}

// RegimeRefreshJob re-detects the regime after each monthly macro release
// ⭐ SSOT: 레짐 갱신 스케줄은 이 Job에서만
type RegimeRefreshJob struct {
	refresher Refresher
	schedule  string
	logger    *logger.Logger
}

// NewRegimeRefreshJob creates a new regime refresh job
func NewRegimeRefreshJob(refresher Refresher, schedule string, log *logger.Logger) *RegimeRefreshJob {
	if schedule == "" {
		schedule = "0 0 6 1 * *"
	}
	return &RegimeRefreshJob{
		refresher: refresher,
		schedule:  schedule,
		logger:    log.WithComponent("jobs.regime_refresh"),
	}
}

// Name returns the job name
func (j *RegimeRefreshJob) Name() string {
	return "regime_refresh"
}

// Schedule returns the cron schedule (default: 06:00 on the 1st of every month)
func (j *RegimeRefreshJob) Schedule() string {
	return j.schedule
}

// Run executes the refresh and logs a regime change
func (j *RegimeRefreshJob) Run(ctx context.Context) error {
	prev, prevErr := j.refresher.Current()

	res, err := j.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh regime: %w", err)
	}
	if res.Latest == nil {
		return fmt.Errorf("refresh regime: no detection produced")
	}

	fields := map[string]interface{}{
		"month":      res.Latest.Date,
		"regime":     res.Latest.Dominant,
		"confidence": res.Latest.Confidence,
		"sticky":     res.Latest.IsSticky,
	}
	if prevErr == nil && prev.Dominant != res.Latest.Dominant {
		fields["previous"] = prev.Dominant
		j.logger.WithFields(fields).Warn("Regime changed")
		return nil
	}
	j.logger.WithFields(fields).Info("Regime refreshed")
	return nil
}
