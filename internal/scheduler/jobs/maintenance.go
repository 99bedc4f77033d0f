package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/regimelab/backend/pkg/database"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// HealthChecker pings a backing store
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// DatabaseHealthJob checks the audit database pool
type DatabaseHealthJob struct {
	db     HealthChecker
	logger *logger.Logger
}

// NewDatabaseHealthJob creates a new database health job
func NewDatabaseHealthJob(db HealthChecker, log *logger.Logger) *DatabaseHealthJob {
	return &DatabaseHealthJob{
		db:     db,
		logger: log.WithComponent("jobs.db_health"),
	}
}

// Name returns the job name
func (j *DatabaseHealthJob) Name() string {
	return "db_health"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *DatabaseHealthJob) Schedule() string {
	return "0 */5 * * * *" // Every 5 minutes
}

// Run executes the health check
func (j *DatabaseHealthJob) Run(ctx context.Context) error {
	status, err := j.db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"response_time": status.ResponseTime,
		"total_conns":   status.Stats.TotalConns,
		"idle_conns":    status.Stats.IdleConns,
	}).Debug("Database healthy")

	return nil
}
