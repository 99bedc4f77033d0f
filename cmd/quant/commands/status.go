package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "현재 레짐 및 인프라 상태",
	Long: `현재 레짐과 인프라 상태를 표시합니다.

표시 정보:
- 최근 월 레짐, 신뢰도, 재임 개월, 전환 진행률
- 설정 해시 / 데이터 스냅샷
- Database / Redis 연결 상태

--watch를 주면 주기적으로 거시 데이터를 다시 읽어 갱신합니다 (Ctrl+C로 종료).

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --watch 1m`,
	RunE: runStatus,
}

var (
	// Status flags
	statusWatch time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().DurationVar(&statusWatch, "watch", 0, "갱신 간격 (0=한 번만)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := initApp(ctx, appOptions{infra: true, quiet: true})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := displayStatus(ctx, app); err != nil {
		return err
	}
	if statusWatch <= 0 {
		return nil
	}

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(statusWatch)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println("\n✅ Status monitor stopped")
			return nil

		case <-ticker.C:
			// Clear screen (ANSI escape code)
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Refresh: %v | Last update: %s\n\n", statusWatch, time.Now().Format("15:04:05"))
			if err := displayStatus(ctx, app); err != nil {
				PrintError(err.Error())
			}
		}
	}
}

func displayStatus(ctx context.Context, a *app) error {
	if _, err := a.orch.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh regime: %w", err)
	}
	st, err := a.orch.State()
	if err != nil {
		return err
	}
	last, _ := st.History.Last()
	table := a.orch.Table()
	meta, _ := table.Regime(last.Dominant)
	_, progress := table.TransitionBands(st.History)

	fmt.Println("=== RegimeLab Status ===")
	fmt.Println()
	fmt.Println("🧭 Regime")
	PrintSeparator()
	PrintKeyValue("Month", last.Date, 12)
	PrintKeyValue("Regime", fmt.Sprintf("%s (%s)", meta.Name, last.Dominant), 12)
	PrintKeyValue("Confidence", fmt.Sprintf("%.1f%%", last.Confidence*100), 12)
	PrintKeyValue("In Regime", fmt.Sprintf("%d months", st.History.MonthsSinceChange()+1), 12)
	PrintKeyValue("Transition", fmt.Sprintf("%.0f%%", progress*100), 12)
	if last.IsSticky {
		PrintKeyValue("Blocked", fmt.Sprintf("%s: %s", last.NaturalLeader, last.BlockReason), 12)
	}
	fmt.Println()

	fmt.Println("🗂️ Snapshot")
	PrintSeparator()
	PrintKeyValue("Config", st.Snapshot.ConfigHash, 12)
	PrintKeyValue("Data", st.Snapshot.DataSnapshotID, 12)
	PrintKeyValue("Months", fmt.Sprintf("%d", len(st.History)), 12)
	fmt.Println()

	fmt.Println("🔌 Infrastructure")
	PrintSeparator()
	dbStatus := "disabled"
	if a.db != nil {
		hs, err := a.db.HealthCheck(ctx)
		if err != nil {
			dbStatus = "unhealthy: " + err.Error()
		} else {
			dbStatus = fmt.Sprintf("ok (%v, %d/%d conns)", hs.ResponseTime.Round(time.Microsecond), hs.Stats.AcquiredConns, hs.Stats.MaxConns)
		}
	}
	PrintKeyValue("Database", dbStatus, 12)

	redisStatus := "disabled"
	if a.redis.Enabled() {
		if err := a.redis.Redis().Ping(ctx).Err(); err != nil {
			redisStatus = "unreachable: " + err.Error()
		} else {
			redisStatus = "ok"
		}
	}
	PrintKeyValue("Redis", redisStatus, 12)
	fmt.Println()
	return nil
}
