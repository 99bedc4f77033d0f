package audit

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/internal/regimeconfig"
	"github.com/wonny/regimelab/backend/internal/risk"
)

func testFunds() []allocation.Fund {
	return []allocation.Fund{
		{Code: "EQ", Name: "Nifty 50 Index", Category: "Equity Large Cap"},
		{Code: "GD", Name: "Gold ETF", Category: "Gold"},
	}
}

// twoRegimeResult: one calm month then one crisis month
func twoRegimeResult() *backtest.Result {
	return &backtest.Result{
		RunID: "run-1",
		Params: backtest.RunParams{
			Start: "2020-01", End: "2020-02", Rebalance: backtest.Monthly, InitialCapital: 100,
		},
		Records: []backtest.MonthRecord{
			{
				Date: "2020-01", Regime: regime.RegimeA, PortfolioReturn: 0.10, PortfolioValue: 110, Peak: 110,
				Weights:        map[string]float64{"EQ": 1.0},
				AssetReturns:   map[string]float64{"EQ": 0.10, "GD": 0.02},
				BenchmarkValue: 110,
			},
			{
				Date: "2020-02", Regime: regime.RegimeD, PortfolioReturn: -0.05, PortfolioValue: 104.5, Peak: 110, Drawdown: 0.05,
				Weights:        map[string]float64{"EQ": 0.5, "GD": 0.5},
				AssetReturns:   map[string]float64{"EQ": -0.10, "GD": 0.0},
				BenchmarkValue: 99, BenchmarkDrawdown: 0.1,
			},
		},
		Transitions: []regime.Transition{
			{Date: "2020-02", From: regime.RegimeA, To: regime.RegimeD, Drivers: []string{regime.TrendShift}},
		},
		Summary: backtest.Summary{
			TotalReturn: 0.045, TotalMonths: 2, MaxDrawdown: 0.05, LongestDrawdown: 1, EndValue: 104.5,
			PerRegime: map[regime.ID]backtest.RegimeStats{
				regime.RegimeA: {Months: 1, AvgMonthly: 0.10, TotalReturn: 0.10},
				regime.RegimeD: {Months: 1, AvgMonthly: -0.05, TotalReturn: -0.05},
			},
			RegimeDistribution: map[regime.ID]float64{regime.RegimeA: 0.5, regime.RegimeD: 0.5},
			Benchmark:          &backtest.BenchmarkStats{TotalReturn: -0.01, MaxDrawdown: 0.1, EndValue: 99},
			Stress: []backtest.StressPeriod{
				{Regime: regime.RegimeD, Months: 1, PortfolioReturn: -0.05, BenchmarkReturn: -0.1, PortfolioWorstDrawdown: 0.05, BenchmarkWorstDrawdown: 0.1},
			},
		},
	}
}

func TestAttributeByRegime(t *testing.T) {
	attrs := AttributeByRegime(twoRegimeResult(), testFunds())
	require.Len(t, attrs, 2)

	a, d := attrs[0], attrs[1]
	assert.Equal(t, regime.RegimeA, a.Regime)
	assert.Equal(t, regime.RegimeD, d.Regime)

	total := math.Log(1.10) + math.Log(0.95)
	assert.InDelta(t, math.Log(1.10), a.LogContribution, 1e-12)
	assert.InDelta(t, math.Log(1.10)/total, a.Share, 1e-9)
	assert.InDelta(t, 1.0, a.Share+d.Share, 1e-9, "shares sum to one")

	assert.InDelta(t, 0.5, d.AvgExposure[allocation.Equity], 1e-12)
	assert.InDelta(t, 0.5, d.AvgExposure[allocation.Gold], 1e-12)
	assert.InDelta(t, -0.05, d.AssetContribution[allocation.Equity], 1e-12)
	assert.InDelta(t, 0.0, d.AssetContribution[allocation.Gold], 1e-12)
}

func TestAttributeByRegimeFlatRunHasNoShare(t *testing.T) {
	res := &backtest.Result{Records: []backtest.MonthRecord{
		{Date: "2020-01", Regime: regime.RegimeB, Weights: map[string]float64{"EQ": 1}},
	}}
	attrs := AttributeByRegime(res, nil)
	require.Len(t, attrs, 1)
	assert.Equal(t, 0.0, attrs[0].Share)
	// unknown codes count as equity
	assert.Equal(t, 1.0, attrs[0].AvgExposure[allocation.Equity])
}

func TestDrawdownEpisodes(t *testing.T) {
	dds := []float64{0, 0.05, 0.10, 0, 0.02}
	records := make([]backtest.MonthRecord, len(dds))
	for i, dd := range dds {
		records[i] = backtest.MonthRecord{Date: []string{"2020-01", "2020-02", "2020-03", "2020-04", "2020-05"}[i], Drawdown: dd}
	}

	eps := DrawdownEpisodes(records)
	require.Len(t, eps, 2)
	assert.Equal(t, DrawdownEpisode{Start: "2020-02", Trough: "2020-03", Recovery: "2020-04", Depth: 0.10, Months: 2}, eps[0])
	assert.Equal(t, DrawdownEpisode{Start: "2020-05", Trough: "2020-05", Depth: 0.02, Months: 1}, eps[1])

	assert.Empty(t, DrawdownEpisodes(nil))
}

func TestSortino(t *testing.T) {
	monthly := []float64{0.02, -0.01, 0.01, -0.02}
	downside := math.Sqrt((0.0001+0.0004)/4) * math.Sqrt(12)
	assert.InDelta(t, 0.05/downside, Sortino(monthly, 0.05, 0), 1e-9)

	assert.Equal(t, 0.0, Sortino([]float64{0.01, 0.02}, 0.2, 0), "no downside")
	assert.Equal(t, 0.0, Sortino(nil, 0.1, 0))
}

func TestAnalyzeCountsOutperformance(t *testing.T) {
	report := NewAnalyzer(nil, nil).Analyze(twoRegimeResult(), testFunds())
	assert.Equal(t, 1, report.OutperformMonths)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "REGIME_A", report.RegimeNames[regime.RegimeA])
	require.Len(t, report.Drawdowns, 1)
	assert.Equal(t, "", report.Drawdowns[0].Recovery)
}

func TestAnalyzerUsesTableShortNames(t *testing.T) {
	cfg, _ := regimeconfig.Default()
	table, err := cfg.Table()
	require.NoError(t, err)

	report := NewAnalyzer(table, nil).Analyze(twoRegimeResult(), testFunds())
	assert.Equal(t, "Regime D", report.RegimeNames[regime.RegimeD])
}

func TestWriteMarkdown(t *testing.T) {
	report := NewAnalyzer(nil, nil).Analyze(twoRegimeResult(), testFunds())
	rr := &RiskReport{
		Portfolio: &PortfolioRiskSummary{VaR99: 0.05, CVaR99: 0.05},
		Limits:    &risk.RiskCheckResult{Passed: false, Violations: []string{"max drawdown too deep"}},
		Stress: []risk.StressResult{
			{Scenario: "equity_crash", Regime: regime.RegimeA, Impact: -0.18},
			{Scenario: "equity_crash", Regime: regime.RegimeD, Impact: -0.08},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteMarkdown(&buf, rr))
	md := buf.String()

	assert.Contains(t, md, "# Backtest Report (2020-01 ~ 2020-02)")
	assert.Contains(t, md, "## 1. Summary")
	assert.Contains(t, md, "## 2. Performance by Regime")
	assert.Contains(t, md, "Total Transitions Detected: 1")
	assert.Contains(t, md, "- **2020-02**: REGIME_A → **REGIME_D** (Led by: Trend Shift)")
	assert.Contains(t, md, "| 2020-02 | 2020-02 | not recovered | 5.00% | 1 |")
	assert.Contains(t, md, "Portfolio beat the benchmark in 1 of 2 months (50.0%).")
	assert.Contains(t, md, "Stress Period Analysis (Regime C & D)")
	assert.Contains(t, md, "Risk limits: FAIL (max drawdown too deep)")
	assert.Contains(t, md, "| equity_crash | -18.00% | 0.00% | 0.00% | -8.00% |")
}

func TestWriteMarkdownWithoutBenchmarkOrRisk(t *testing.T) {
	res := twoRegimeResult()
	res.Summary.Benchmark = nil
	res.Summary.Stress = nil

	var buf bytes.Buffer
	require.NoError(t, NewAnalyzer(nil, nil).Analyze(res, testFunds()).WriteMarkdown(&buf, nil))
	md := buf.String()

	assert.NotContains(t, md, "Benchmark Comparison")
	assert.NotContains(t, md, "## 6. Risk")
	assert.Contains(t, md, "## 4. Drawdowns")
}

func ladder(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i%10-4) / 100 // -0.04 .. 0.05
	}
	return out
}

func TestGenerateReport(t *testing.T) {
	cfg, _ := regimeconfig.Default()
	table, err := cfg.Table()
	require.NoError(t, err)

	reporter := NewRiskReporter(risk.NewEngine(), table, zerolog.Nop())
	limits := risk.DefaultRiskLimits()
	mc := risk.DefaultMonteCarloConfig()
	mc.NumSimulations = 500
	mc.Seed = 42

	report, err := reporter.GenerateReport(context.Background(), RiskReportInput{
		RunID:            "run-1",
		MonthlyReturns:   ladder(30),
		MaxDrawdown:      0.30,
		DataFrom:         "2020-01",
		DataTo:           "2022-06",
		Limits:           &limits,
		MonteCarloConfig: &mc,
	})
	require.NoError(t, err)

	require.NotNil(t, report.Portfolio)
	assert.Equal(t, 30, report.Portfolio.SampleCount)
	assert.InDelta(t, 0.04, report.Portfolio.VaR95, 1e-12)
	assert.Equal(t, 0.30, report.Portfolio.MaxDrawdown)

	require.NotNil(t, report.Limits)
	assert.False(t, report.Limits.Passed, "30% drawdown breaches the 25% limit")

	require.NotNil(t, report.MonteCarlo)
	assert.Equal(t, 500, report.MonteCarlo.Config.NumSimulations)
	assert.Empty(t, report.Metadata.MonteCarloErr)

	assert.Len(t, report.Stress, len(risk.DefaultScenarios())*len(regime.All()))

	summary := report.ToSummary()
	assert.Contains(t, summary, "Run ID: run-1")
	assert.Contains(t, summary, "Limits: FAIL")
	assert.Contains(t, summary, "Monte Carlo Simulation")

	raw, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"run_id": "run-1"`)
}

func TestGenerateReportSkipsMonteCarloOnShortHistory(t *testing.T) {
	reporter := NewRiskReporter(risk.NewEngine(), nil, zerolog.Nop())
	mc := risk.DefaultMonteCarloConfig()

	report, err := reporter.GenerateReport(context.Background(), RiskReportInput{
		RunID:            "short",
		MonthlyReturns:   ladder(6),
		MonteCarloConfig: &mc,
	})
	require.NoError(t, err)
	assert.Nil(t, report.MonteCarlo)
	assert.Contains(t, report.Metadata.MonteCarloErr, "insufficient")
	assert.Nil(t, report.Stress)
	assert.Contains(t, report.ToSummary(), "Monte Carlo skipped")
}

func TestGenerateReportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRiskReporter(risk.NewEngine(), nil, zerolog.Nop()).GenerateReport(ctx, RiskReportInput{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInputFromBacktest(t *testing.T) {
	in := InputFromBacktest(twoRegimeResult())
	assert.Equal(t, "run-1", in.RunID)
	assert.Equal(t, []float64{0.10, -0.05}, in.MonthlyReturns)
	assert.Equal(t, 0.05, in.MaxDrawdown)
	assert.Equal(t, "2020-01", in.DataFrom)
}
