package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/audit"
	"github.com/wonny/regimelab/backend/internal/risk"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit - 저장된 백테스트의 리스크 분석",
	Long: `DB에 저장된 백테스트 실행(backtest run --save)을 다시 분석합니다.

명령어:
  runs         저장된 실행 요약 조회
  montecarlo   Monte Carlo 시뮬레이션 실행
  risk-report  리스크 리포트 생성 및 저장`,
}

var (
	auditRunID string

	// montecarlo 플래그
	mcSimulations int
	mcHorizon     int
	mcMethod      string
	mcSeed        int64

	// risk-report 플래그
	reportMonteCarlo bool
	reportSave       bool
)

var auditRunCmd = &cobra.Command{
	Use:   "runs",
	Short: "저장된 백테스트 실행 요약",
	RunE:  runAuditShowRun,
}

var auditMonteCarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Monte Carlo 시뮬레이션 실행",
	Long: `저장된 월간 포트폴리오 수익률을 기반으로 Monte Carlo 시뮬레이션을 실행합니다.

시뮬레이션 방법:
- bootstrap: 과거 월수익률 복원추출 (기본)
- normal: 정규분포 가정 (Parametric)

출력:
- VaR (Value at Risk): 지정 신뢰수준에서 기간 최대 손실
- CVaR (Expected Shortfall): VaR 이상 손실의 평균
- 수익률 분포 백분위수

Example:
  go run ./cmd/quant audit montecarlo --run <run_id>
  go run ./cmd/quant audit montecarlo --run <run_id> --simulations 50000 --horizon 24
  go run ./cmd/quant audit montecarlo --run <run_id> --method normal --seed 42 --json`,
	RunE: runAuditMonteCarlo,
}

var auditRiskReportCmd = &cobra.Command{
	Use:   "risk-report",
	Short: "리스크 리포트 생성",
	Long: `저장된 백테스트의 리스크 리포트를 생성합니다.

리포트 내용:
- 포트폴리오 VaR/CVaR
- 리스크 한도 점검
- Monte Carlo 시뮬레이션 결과 (--monte-carlo)
- 레짐별 스트레스 테스트 결과

Example:
  go run ./cmd/quant audit risk-report --run <run_id>
  go run ./cmd/quant audit risk-report --run <run_id> --monte-carlo --save`,
	RunE: runAuditRiskReport,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRunCmd)
	auditCmd.AddCommand(auditMonteCarloCmd)
	auditCmd.AddCommand(auditRiskReportCmd)

	for _, c := range []*cobra.Command{auditRunCmd, auditMonteCarloCmd, auditRiskReportCmd} {
		c.Flags().StringVar(&auditRunID, "run", "", "백테스트 run_id (필수)")
		_ = c.MarkFlagRequired("run")
	}

	// montecarlo 플래그
	auditMonteCarloCmd.Flags().IntVar(&mcSimulations, "simulations", 10000, "시뮬레이션 횟수")
	auditMonteCarloCmd.Flags().IntVar(&mcHorizon, "horizon", 12, "보유 기간 (월)")
	auditMonteCarloCmd.Flags().StringVar(&mcMethod, "method", "bootstrap", "시뮬레이션 방법 (bootstrap, normal)")
	auditMonteCarloCmd.Flags().Int64Var(&mcSeed, "seed", 0, "재현성용 시드 (0=랜덤)")

	// risk-report 플래그
	auditRiskReportCmd.Flags().BoolVar(&reportMonteCarlo, "monte-carlo", false, "Monte Carlo 포함")
	auditRiskReportCmd.Flags().BoolVar(&reportSave, "save", false, "regime.risk_reports에 저장")
}

// initAuditApp wires the app and requires the audit database
func initAuditApp(cmd *cobra.Command) (*app, error) {
	a, err := initApp(cmd.Context(), appOptions{infra: true, quiet: true})
	if err != nil {
		return nil, err
	}
	if a.repo == nil {
		a.Close()
		return nil, fmt.Errorf("audit commands require DATABASE_URL")
	}
	return a, nil
}

func runAuditShowRun(cmd *cobra.Command, args []string) error {
	app, err := initAuditApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	run, err := app.repo.GetBacktestRun(cmd.Context(), auditRunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", auditRunID, err)
	}
	if outputJSON {
		return printJSON(run)
	}

	fmt.Println("=== Audit: Backtest Run ===")
	PrintKeyValue("Run ID", run.RunID, 14)
	PrintKeyValue("Created", run.CreatedAt.Format("2006-01-02 15:04:05"), 14)
	PrintKeyValue("Config", run.ConfigHash, 14)
	PrintKeyValue("Data", run.DataSnapshotID, 14)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s", run.Params.Start, run.Params.End), 14)
	PrintKeyValue("Rebalance", string(run.Params.Rebalance), 14)
	PrintKeyValue("Total Return", fmt.Sprintf("%+.2f%%", run.Summary.TotalReturn*100), 14)
	PrintKeyValue("Sharpe", fmt.Sprintf("%.2f", run.Summary.Sharpe), 14)
	PrintKeyValue("Max Drawdown", fmt.Sprintf("%.2f%%", run.Summary.MaxDrawdown*100), 14)
	return nil
}

func runAuditMonteCarlo(cmd *cobra.Command, args []string) error {
	app, err := initAuditApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	returns, err := app.repo.BacktestMonthReturns(cmd.Context(), auditRunID)
	if err != nil {
		return fmt.Errorf("load returns: %w", err)
	}

	config := risk.DefaultMonteCarloConfig()
	config.NumSimulations = mcSimulations
	config.HoldingPeriod = mcHorizon
	config.Seed = mcSeed
	switch mcMethod {
	case "bootstrap":
		config.Method = risk.MethodHistoricalBootstrap
	case "normal":
		config.Method = risk.MethodParametricNormal
	default:
		return fmt.Errorf("unknown method %q (bootstrap, normal)", mcMethod)
	}

	result, err := risk.NewEngine().MonteCarlo(cmd.Context(), returns, config)
	if err != nil {
		return fmt.Errorf("monte carlo: %w", err)
	}

	if outputJSON {
		return printJSON(result)
	}
	fmt.Println("=== Audit: Monte Carlo Simulation ===")
	printMonteCarloResult(result)
	return nil
}

func printMonteCarloResult(result *risk.MonteCarloResult) {
	fmt.Println("\n=== Monte Carlo Results ===")
	fmt.Printf("Run ID: %s\n", result.RunID)
	fmt.Printf("Method: %s, %d paths × %d months\n", result.Config.Method, result.Config.NumSimulations, result.Config.HoldingPeriod)
	fmt.Printf("Input Samples: %d\n\n", result.InputSampleCount)

	fmt.Println("📊 Distribution")
	fmt.Printf("  Mean Return: %+.4f (%+.2f%%)\n", result.MeanReturn, result.MeanReturn*100)
	fmt.Printf("  Std Dev: %.4f (%.2f%%)\n", result.StdDev, result.StdDev*100)
	fmt.Printf("  P(loss): %.1f%%\n", result.ProbabilityLoss*100)

	fmt.Println("\n📉 Risk Metrics (Loss as Positive)")
	fmt.Printf("  VaR 95%%: %.4f (%.2f%%)\n", result.VaR95, result.VaR95*100)
	fmt.Printf("  VaR 99%%: %.4f (%.2f%%)\n", result.VaR99, result.VaR99*100)
	fmt.Printf("  CVaR 95%%: %.4f (%.2f%%)\n", result.CVaR95, result.CVaR95*100)
	fmt.Printf("  CVaR 99%%: %.4f (%.2f%%)\n", result.CVaR99, result.CVaR99*100)

	fmt.Println("\n📊 Percentiles")
	percentiles := []int{1, 5, 10, 25, 50, 75, 90, 95, 99}
	for _, p := range percentiles {
		if val, ok := result.Percentiles[p]; ok {
			fmt.Printf("  P%d: %+.4f\n", p, val)
		}
	}

	fmt.Println("\n💡 Interpretation")
	if result.VaR95 < 0.10 {
		fmt.Println("  ✅ Low risk portfolio (horizon VaR95 < 10%)")
	} else if result.VaR95 < 0.20 {
		fmt.Println("  ⚠️ Moderate risk portfolio (horizon VaR95 10-20%)")
	} else {
		fmt.Println("  ❌ High risk portfolio (horizon VaR95 > 20%)")
	}

	fmt.Printf("\n✅ Simulation completed (seed: %d)\n", result.Config.Seed)
}

func runAuditRiskReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := initAuditApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	run, err := app.repo.GetBacktestRun(ctx, auditRunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", auditRunID, err)
	}
	returns, err := app.repo.BacktestMonthReturns(ctx, auditRunID)
	if err != nil {
		return fmt.Errorf("load returns: %w", err)
	}

	limits := risk.DefaultRiskLimits()
	input := audit.RiskReportInput{
		RunID:          run.RunID,
		MonthlyReturns: returns,
		MaxDrawdown:    run.Summary.MaxDrawdown,
		DataFrom:       run.Params.Start,
		DataTo:         run.Params.End,
		Limits:         &limits,
	}
	if reportMonteCarlo {
		mc := risk.DefaultMonteCarloConfig()
		input.MonteCarloConfig = &mc
	}

	reporter := audit.NewRiskReporter(risk.NewEngine(), app.orch.Table(), app.log.Zerolog())
	report, err := reporter.GenerateReport(ctx, input)
	if err != nil {
		return fmt.Errorf("generate report failed: %w", err)
	}

	if reportSave {
		if err := app.repo.SaveRiskReport(ctx, report); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
	}

	// 출력
	if outputJSON {
		jsonData, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(jsonData))
	} else {
		fmt.Println(report.ToSummary())
		if reportSave {
			PrintSuccess("report saved")
		}
	}

	return nil
}
