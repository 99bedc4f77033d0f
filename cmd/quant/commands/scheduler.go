package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/scheduler"
	"github.com/wonny/regimelab/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run regime_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- regime_refresh: REFRESH_SCHEDULE (기본 매월 1일 06:00, 거시 데이터 재로드 + 레짐 재생)
- backtest_snapshot: 매월 1일 06:30, 전체 기간 백테스트 저장 (DATABASE_URL 필요)
- db_health: 5분마다 (DATABASE_URL 필요)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== RegimeLab Scheduler ===")

	app, err := initApp(cmd.Context(), appOptions{infra: true})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(app)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Initial state so the first run can report regime changes
	if _, err := app.orch.Refresh(cmd.Context()); err != nil {
		app.log.WithError(err).Warn("Initial regime refresh failed")
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	printJobStats(sched)
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	app, err := initApp(cmd.Context(), appOptions{infra: true, quiet: true})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(app)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %-18s %s\n", jobName, stats[jobName].Schedule)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	app, err := initApp(cmd.Context(), appOptions{infra: true, quiet: !verbose})
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(app)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	if jobName != "regime_refresh" {
		if _, err := app.orch.Refresh(cmd.Context()); err != nil {
			app.log.WithError(err).Warn("Regime state not loaded")
		}
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJobSync(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", jobName, result.Attempts, result.Error)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastSuccess != nil {
			fmt.Printf("   Last Success: %s\n", stat.LastSuccess.Format("2006-01-02 15:04:05"))
		}
		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}
}

// newScheduler registers every job the wired infrastructure supports
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log, scheduler.WithRetry(2, 5*time.Minute))

	if err := sched.AddJob(jobs.NewRegimeRefreshJob(a.orch, a.cfg.Regime.RefreshSchedule, a.log)); err != nil {
		return nil, err
	}
	if a.repo != nil {
		if err := sched.AddJob(jobs.NewBacktestSnapshotJob(a.orch, "", a.log)); err != nil {
			return nil, err
		}
	}
	if a.db != nil {
		if err := sched.AddJob(jobs.NewDatabaseHealthJob(a.db, a.log)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
