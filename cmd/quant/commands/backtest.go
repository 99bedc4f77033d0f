package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "레짐 조건부 백테스트",
	Long: `과거 거시 데이터로 레짐을 재생하고 레짐별 목표 비중으로
펀드 포트폴리오를 월 단위로 시뮬레이션합니다.

검증 항목:
- 누적/연환산 수익률, 변동성, Sharpe, Sortino, MDD
- 레짐별 성과와 전환 이력
- 벤치마크 대비 성과, 레짐 C/D 스트레스 구간
- VaR/CVaR, Monte Carlo, 스트레스 시나리오

Example:
  go run ./cmd/quant backtest run --from 2010-01 --to 2023-12
  go run ./cmd/quant backtest run --funds funds.json --returns returns.json --rebalance quarterly
  go run ./cmd/quant backtest run --benchmark macro --report report.md --save`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `지정된 기간 동안 백테스트를 실행합니다.

Flags:
  --macro        거시 데이터 JSON (기본: MACRO_DATA_PATH)
  --returns      펀드별 월간 수익률 JSON (없으면 거시 지표 기반 자산군 프록시)
  --funds        펀드 목록 JSON
  --from / --to  기간 (YYYY-MM)
  --rebalance    monthly | quarterly | annual
  --capital      초기 자본
  --smoothing    레짐 확률 EMA 가중치
  --risk-free    연 무위험 수익률 (Sharpe)
  --benchmark    벤치마크 가격 JSON 또는 "macro" (sp500 레벨)
  --report       마크다운 리포트 저장 경로
  --save         DB에 실행 결과 저장
  --monte-carlo  Monte Carlo 리스크 시뮬레이션 포함

Example:
  go run ./cmd/quant backtest run --from 2015-01 --capital 1000000
  go run ./cmd/quant backtest run --rebalance quarterly --on-transition
  go run ./cmd/quant backtest run --benchmark benchmark.json --monte-carlo --json`,
		RunE: runBacktest,
	}

	// Flags
	backtestMacroPath    string
	backtestReturnsPath  string
	backtestFundsPath    string
	backtestFrom         string
	backtestTo           string
	backtestRebalance    string
	backtestOnTransition bool
	backtestCapital      float64
	backtestSmoothing    float64
	backtestRiskFree     float64
	backtestBenchmark    string
	backtestReport       string
	backtestSave         bool
	backtestMonteCarlo   bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	// Flags
	f := backtestRunCmd.Flags()
	f.StringVar(&backtestMacroPath, "macro", "", "거시 데이터 JSON (기본: MACRO_DATA_PATH)")
	f.StringVar(&backtestReturnsPath, "returns", "", "펀드 월간 수익률 JSON (기본: RETURNS_DATA_PATH)")
	f.StringVar(&backtestFundsPath, "funds", "", "펀드 목록 JSON")
	f.StringVar(&backtestFrom, "from", "", "시작 월 (YYYY-MM, 기본: 데이터 처음)")
	f.StringVar(&backtestTo, "to", "", "종료 월 (YYYY-MM, 기본: 데이터 끝)")
	f.StringVar(&backtestRebalance, "rebalance", "", "리밸런싱 주기 (monthly|quarterly|annual, 기본: REBALANCE_FREQUENCY)")
	f.BoolVar(&backtestOnTransition, "on-transition", false, "레짐 전환 시 주기와 무관하게 리밸런싱")
	f.Float64Var(&backtestCapital, "capital", 0, "초기 자본 (기본: INITIAL_CAPITAL)")
	f.Float64Var(&backtestSmoothing, "smoothing", 0, "레짐 확률 EMA 가중치 (0~1)")
	f.Float64Var(&backtestRiskFree, "risk-free", 0, "연 무위험 수익률")
	f.StringVar(&backtestBenchmark, "benchmark", "", `벤치마크 가격 JSON 또는 "macro"`)
	f.StringVar(&backtestReport, "report", "", "마크다운 리포트 저장 경로")
	f.BoolVar(&backtestSave, "save", false, "DB에 실행 결과 저장")
	f.BoolVar(&backtestMonteCarlo, "monte-carlo", false, "Monte Carlo 시뮬레이션 포함")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	req, err := backtestRequestFromFlags(cmd)
	if err != nil {
		return err
	}

	app, err := initApp(cmd.Context(), appOptions{infra: true, quiet: true, macroPath: backtestMacroPath})
	if err != nil {
		return err
	}
	defer app.Close()

	if req.Returns == nil && app.cfg.Regime.ReturnsDataPath != "" && len(req.Funds) > 0 {
		if req.Returns, err = backtest.LoadReturnsFile(app.cfg.Regime.ReturnsDataPath); err != nil {
			return err
		}
	}

	if !outputJSON {
		fmt.Println("=== RegimeLab Backtest Engine ===")
		fmt.Println("🚀 Starting backtest...")
	}

	if _, err := app.orch.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("load macro history: %w", err)
	}

	out, err := app.orch.Backtest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestReport != "" {
		if err := writeReport(backtestReport, out); err != nil {
			return err
		}
	}

	if outputJSON {
		return printJSON(out)
	}
	printBacktestResult(out)
	if backtestReport != "" {
		PrintInfo(fmt.Sprintf("report written to %s", backtestReport))
	}
	if req.Save && !out.Saved {
		PrintWarning("result not saved (DATABASE_URL not set)")
	}
	return nil
}

// backtestRequestFromFlags reads the input files and flags into a request
func backtestRequestFromFlags(cmd *cobra.Command) (brain.BacktestRequest, error) {
	req := brain.BacktestRequest{
		Start:                 backtestFrom,
		End:                   backtestTo,
		Rebalance:             backtestRebalance,
		RebalanceOnTransition: backtestOnTransition,
		InitialCapital:        backtestCapital,
		MonteCarlo:            backtestMonteCarlo,
		Save:                  backtestSave,
	}

	flags := cmd.Flags()
	if flags.Changed("smoothing") {
		sf := backtestSmoothing
		req.SmoothingFactor = &sf
	}
	if flags.Changed("risk-free") {
		rf := backtestRiskFree
		req.RiskFreeRate = &rf
	}

	var err error
	if backtestFundsPath != "" {
		if req.Funds, err = backtest.LoadFundsFile(backtestFundsPath); err != nil {
			return req, err
		}
	}
	if backtestReturnsPath != "" {
		if req.Returns, err = backtest.LoadReturnsFile(backtestReturnsPath); err != nil {
			return req, err
		}
	}

	switch strings.ToLower(backtestBenchmark) {
	case "":
	case "macro":
		req.MacroBenchmark = true
	default:
		if req.Benchmark, err = backtest.LoadBenchmarkFile(backtestBenchmark); err != nil {
			return req, err
		}
	}
	return req, nil
}

func writeReport(path string, out *brain.BacktestOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	if err := out.Performance.WriteMarkdown(f, out.Risk); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func printBacktestResult(out *brain.BacktestOutcome) {
	res := out.Result
	s := res.Summary

	fmt.Println("\n✅ Backtest Completed")
	PrintDoubleSeparator()
	fmt.Println()

	// Summary
	fmt.Println("📊 Summary")
	fmt.Printf("Run ID:          %s\n", res.RunID)
	fmt.Printf("Period:          %s ~ %s (%d months)\n", res.Params.Start, res.Params.End, s.TotalMonths)
	fmt.Printf("Rebalance:       %v (%d times)\n", res.Params.Rebalance, s.Rebalances)
	fmt.Printf("Smoothing:       %.2f\n", res.Params.SmoothingFactor)
	if out.Cached {
		fmt.Println("Source:          cache")
	}
	fmt.Println()

	// Performance
	fmt.Println("💰 Performance")
	fmt.Printf("Initial Capital: %s\n", formatNumber(int64(res.Params.InitialCapital)))
	fmt.Printf("Final Capital:   %s\n", formatNumber(int64(s.EndValue)))
	fmt.Printf("Total Return:    %+.2f%%\n", s.TotalReturn*100)
	fmt.Printf("Annual Return:   %+.2f%%\n", s.AnnualizedReturn*100)
	fmt.Printf("Volatility:      %.2f%%\n", s.AnnualizedVol*100)
	fmt.Printf("Win Rate:        %.1f%%\n", s.WinRate*100)
	fmt.Println()

	// Risk Metrics
	fmt.Println("📉 Risk Metrics")
	fmt.Printf("Sharpe Ratio:    %.2f", s.Sharpe)
	switch {
	case s.Sharpe > 1.0:
		fmt.Print(" 🌟 (Excellent)")
	case s.Sharpe > 0.5:
		fmt.Print(" ✅ (Good)")
	case s.Sharpe > 0:
		fmt.Print(" ⚠️  (Fair)")
	default:
		fmt.Print(" ❌ (Poor)")
	}
	fmt.Println()
	if out.Performance != nil {
		fmt.Printf("Sortino Ratio:   %.2f\n", out.Performance.Sortino)
	}
	fmt.Printf("Max Drawdown:    %.2f%% (longest %d months)\n", s.MaxDrawdown*100, s.LongestDrawdown)
	fmt.Printf("Monthly VaR 95%%: %.2f%% (CVaR %.2f%%)\n", s.VaR95*100, s.CVaR95*100)
	if s.BestRolling12M != nil && s.WorstRolling12M != nil {
		fmt.Printf("Best 12M:        %+.2f%% (%s ~ %s)\n", s.BestRolling12M.Return*100, s.BestRolling12M.Start, s.BestRolling12M.End)
		fmt.Printf("Worst 12M:       %+.2f%% (%s ~ %s)\n", s.WorstRolling12M.Return*100, s.WorstRolling12M.Start, s.WorstRolling12M.End)
	}
	fmt.Println()

	// Per regime
	fmt.Println("🧭 Performance by Regime")
	widths := []int{10, 7, 9, 9, 8}
	PrintTableHeader([]string{"Regime", "Months", "Ann.Ret", "Ann.Vol", "Sharpe"}, widths)
	for _, id := range regime.All() {
		st, ok := s.PerRegime[id]
		if !ok || st.Months == 0 {
			continue
		}
		PrintTableRow([]string{
			string(id),
			fmt.Sprintf("%d", st.Months),
			fmt.Sprintf("%+.2f%%", st.AnnualReturn*100),
			fmt.Sprintf("%.2f%%", st.AnnualVol*100),
			fmt.Sprintf("%.2f", st.Sharpe),
		}, widths)
	}
	fmt.Println()

	// Transitions
	fmt.Printf("🔄 Transitions (%d)\n", len(res.Transitions))
	for _, t := range res.Transitions {
		fmt.Printf("   %s  %s → %s\n", t.Date, t.From, t.To)
	}
	fmt.Println()

	// Benchmark
	if b := s.Benchmark; b != nil {
		fmt.Println("📈 Benchmark")
		fmt.Printf("Total Return:    %+.2f%%\n", b.TotalReturn*100)
		fmt.Printf("Max Drawdown:    %.2f%%\n", b.MaxDrawdown*100)
		fmt.Printf("Excess (ann.):   %+.2f%%\n", b.ExcessReturn*100)
		for _, sp := range s.Stress {
			fmt.Printf("%s: portfolio %+.2f%% vs benchmark %+.2f%% over %d months\n",
				sp.Regime, sp.PortfolioReturn*100, sp.BenchmarkReturn*100, sp.Months)
		}
		fmt.Println()
	}

	// Risk
	if rr := out.Risk; rr != nil {
		if rr.Limits != nil {
			if rr.Limits.Passed {
				PrintSuccess("Risk limits: PASS")
			} else {
				PrintError("Risk limits: FAIL")
			}
		}
		if rr.MonteCarlo != nil {
			printMonteCarloResult(rr.MonteCarlo)
		}
		if len(rr.Stress) > 0 {
			fmt.Println("\n🌪️ Stress Scenarios (target weights per regime)")
			var order []string
			byScenario := make(map[string][]string)
			for _, st := range rr.Stress {
				if _, seen := byScenario[st.Scenario]; !seen {
					order = append(order, st.Scenario)
				}
				byScenario[st.Scenario] = append(byScenario[st.Scenario],
					fmt.Sprintf("%s %+.1f%%", strings.TrimPrefix(string(st.Regime), "REGIME_"), st.Impact*100))
			}
			for _, name := range order {
				fmt.Printf("   %-28s %s\n", name, strings.Join(byScenario[name], "  "))
			}
		}
	}
	fmt.Println()
}
