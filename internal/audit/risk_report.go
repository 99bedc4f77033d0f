package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/risk"
)

// =============================================================================
// Risk Reporter
// =============================================================================

// RiskReporter 백테스트 결과 리스크 리포트 생성기
// ⭐ SSOT: 리스크 리포팅은 여기서만
type RiskReporter struct {
	engine *risk.Engine
	table  *allocation.Table
	log    zerolog.Logger
}

// NewRiskReporter 새 리스크 리포터 생성. table == nil 이면 스트레스 테스트 생략
func NewRiskReporter(engine *risk.Engine, table *allocation.Table, log zerolog.Logger) *RiskReporter {
	return &RiskReporter{
		engine: engine,
		table:  table,
		log:    log.With().Str("component", "audit.risk_reporter").Logger(),
	}
}

// =============================================================================
// Report Types
// =============================================================================

// RiskReport 리스크 리포트
type RiskReport struct {
	ReportDate time.Time              `json:"report_date"`
	RunID      string                 `json:"run_id"`
	Portfolio  *PortfolioRiskSummary  `json:"portfolio"`
	Limits     *risk.RiskCheckResult  `json:"limits,omitempty"`
	MonteCarlo *risk.MonteCarloResult `json:"monte_carlo,omitempty"`
	Stress     []risk.StressResult    `json:"stress_test,omitempty"`
	Metadata   ReportMetadata         `json:"metadata"`
}

// PortfolioRiskSummary 포트폴리오 월간 리스크 요약
type PortfolioRiskSummary struct {
	SampleCount int     `json:"sample_count"`
	VaR95       float64 `json:"var_95"`
	VaR99       float64 `json:"var_99"`
	CVaR95      float64 `json:"cvar_95"`
	CVaR99      float64 `json:"cvar_99"`
	MeanReturn  float64 `json:"mean_return"`
	StdDev      float64 `json:"std_dev"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// ReportMetadata 리포트 메타데이터
type ReportMetadata struct {
	GeneratedAt    time.Time              `json:"generated_at"`
	DataFrom       string                 `json:"data_from"`
	DataTo         string                 `json:"data_to"`
	SampleCount    int                    `json:"sample_count"`
	MonteCarloConf *risk.MonteCarloConfig `json:"monte_carlo_config,omitempty"`
	MonteCarloErr  string                 `json:"monte_carlo_error,omitempty"`
}

// =============================================================================
// Report Generation
// =============================================================================

// RiskReportInput 리스크 리포트 생성 입력
// ⭐ 데이터 조립은 호출자에서, 계산은 risk.Engine에서
type RiskReportInput struct {
	RunID            string
	MonthlyReturns   []float64 // 포트폴리오 월간 수익률
	MaxDrawdown      float64   // 시뮬레이션에서 관측된 MDD (0~1)
	DataFrom         string
	DataTo           string
	Limits           *risk.RiskLimits       // nil = 한도 점검 생략
	MonteCarloConfig *risk.MonteCarloConfig // nil = 시뮬레이션 생략
}

// InputFromBacktest assembles a report input from a finished run
func InputFromBacktest(res *backtest.Result) RiskReportInput {
	return RiskReportInput{
		RunID:          res.RunID,
		MonthlyReturns: res.Returns(),
		MaxDrawdown:    res.Summary.MaxDrawdown,
		DataFrom:       res.Params.Start,
		DataTo:         res.Params.End,
	}
}

// GenerateReport 전체 리스크 리포트 생성.
// Monte Carlo 실패(표본 부족 등)는 리포트를 막지 않고 메타데이터에 기록한다.
func (r *RiskReporter) GenerateReport(ctx context.Context, input RiskReportInput) (*RiskReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	report := &RiskReport{
		ReportDate: now,
		RunID:      input.RunID,
		Metadata: ReportMetadata{
			GeneratedAt: now,
			DataFrom:    input.DataFrom,
			DataTo:      input.DataTo,
			SampleCount: len(input.MonthlyReturns),
		},
	}

	// 1. 포트폴리오 기본 리스크
	if len(input.MonthlyReturns) > 0 {
		report.Portfolio = r.calculatePortfolioRisk(input.MonthlyReturns, input.MaxDrawdown)
	}

	// 2. 한도 점검 (선택적)
	if input.Limits != nil && len(input.MonthlyReturns) > 0 {
		report.Limits = r.engine.CheckLimits(input.MonthlyReturns, input.MaxDrawdown, *input.Limits)
		if !report.Limits.Passed {
			r.log.Warn().
				Str("run_id", input.RunID).
				Strs("violations", report.Limits.Violations).
				Msg("risk limits breached")
		}
	}

	// 3. Monte Carlo (선택적)
	if input.MonteCarloConfig != nil {
		cfg := *input.MonteCarloConfig
		report.Metadata.MonteCarloConf = &cfg
		mc, err := r.engine.MonteCarlo(ctx, input.MonthlyReturns, cfg)
		switch {
		case err == nil:
			report.MonteCarlo = mc
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			r.log.Warn().Err(err).Msg("Monte Carlo simulation skipped")
			report.Metadata.MonteCarloErr = err.Error()
		}
	}

	// 4. 레짐 목표비중 스트레스 테스트
	if r.table != nil {
		report.Stress = r.engine.StressTest(r.table, risk.DefaultScenarios())
	}

	r.log.Info().
		Str("run_id", input.RunID).
		Int("sample_count", len(input.MonthlyReturns)).
		Msg("risk report generated")

	return report, nil
}

func (r *RiskReporter) calculatePortfolioRisk(returns []float64, maxDrawdown float64) *PortfolioRiskSummary {
	var95 := r.engine.VaR(returns, 0.95)
	var99 := r.engine.VaR(returns, 0.99)

	return &PortfolioRiskSummary{
		SampleCount: len(returns),
		VaR95:       var95.VaR,
		VaR99:       var99.VaR,
		CVaR95:      var95.CVaR,
		CVaR99:      var99.CVaR,
		MeanReturn:  risk.CalculateMean(returns),
		StdDev:      risk.CalculateVolatility(returns),
		MaxDrawdown: maxDrawdown,
	}
}

// =============================================================================
// Output Formatting
// =============================================================================

// ToJSON JSON 형식으로 출력
func (report *RiskReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// ToSummary 요약 문자열 출력
func (report *RiskReport) ToSummary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Risk Report (%s) ===\n", report.ReportDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Run ID: %s\n", report.RunID)
	if report.Metadata.DataFrom != "" {
		fmt.Fprintf(&b, "Period: %s ~ %s\n", report.Metadata.DataFrom, report.Metadata.DataTo)
	}
	b.WriteString("\n")

	if p := report.Portfolio; p != nil {
		b.WriteString("📊 Portfolio Risk (monthly)\n")
		fmt.Fprintf(&b, "  Samples: %d\n", p.SampleCount)
		fmt.Fprintf(&b, "  VaR 95%%: %.4f (%.2f%%)\n", p.VaR95, p.VaR95*100)
		fmt.Fprintf(&b, "  VaR 99%%: %.4f (%.2f%%)\n", p.VaR99, p.VaR99*100)
		fmt.Fprintf(&b, "  CVaR 95%%: %.4f (%.2f%%)\n", p.CVaR95, p.CVaR95*100)
		fmt.Fprintf(&b, "  Max Drawdown: %.4f (%.2f%%)\n", p.MaxDrawdown, p.MaxDrawdown*100)
		b.WriteString("\n")
	}

	if l := report.Limits; l != nil {
		status := "PASS"
		if !l.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "🚦 Limits: %s\n", status)
		for _, v := range l.Violations {
			fmt.Fprintf(&b, "  - %s\n", v)
		}
		b.WriteString("\n")
	}

	if mc := report.MonteCarlo; mc != nil {
		b.WriteString("🎲 Monte Carlo Simulation\n")
		fmt.Fprintf(&b, "  Simulations: %d (%s)\n", mc.Config.NumSimulations, mc.Config.Method)
		fmt.Fprintf(&b, "  Holding Period: %d months\n", mc.Config.HoldingPeriod)
		fmt.Fprintf(&b, "  Mean Return: %.4f\n", mc.MeanReturn)
		fmt.Fprintf(&b, "  Std Dev: %.4f\n", mc.StdDev)
		fmt.Fprintf(&b, "  MC VaR 95%%: %.4f\n", mc.VaR95)
		fmt.Fprintf(&b, "  MC CVaR 95%%: %.4f\n", mc.CVaR95)
		fmt.Fprintf(&b, "  P(loss): %.2f%%\n", mc.ProbabilityLoss*100)
		b.WriteString("\n")
	} else if report.Metadata.MonteCarloErr != "" {
		fmt.Fprintf(&b, "🎲 Monte Carlo skipped: %s\n\n", report.Metadata.MonteCarloErr)
	}

	if len(report.Stress) > 0 {
		b.WriteString("⚠️ Stress Test Results\n")
		for _, s := range report.Stress {
			fmt.Fprintf(&b, "  %-16s %s: %+.4f (%.2f%%)\n", s.Scenario, s.Regime, s.Impact, s.Impact*100)
		}
	}

	return b.String()
}
