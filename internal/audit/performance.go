package audit

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// Analyzer turns a finished backtest into a performance report
// ⭐ SSOT: 백테스트 성과 분석/리포트는 여기서만
type Analyzer struct {
	table  *allocation.Table
	logger *logger.Logger
}

// NewAnalyzer creates a new performance analyzer. table supplies regime display names and may be nil.
func NewAnalyzer(table *allocation.Table, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{
		table:  table,
		logger: log.WithComponent("audit.performance"),
	}
}

// DrawdownEpisode one underwater stretch
type DrawdownEpisode struct {
	Start    string  `json:"start"`              // first underwater month
	Trough   string  `json:"trough"`             // deepest month
	Recovery string  `json:"recovery,omitempty"` // first month back at a peak, empty if never
	Depth    float64 `json:"depth"`
	Months   int     `json:"months"` // underwater months
}

// PerformanceReport represents performance analysis of one run
type PerformanceReport struct {
	RunID string `json:"run_id"`
	Start string `json:"start"`
	End   string `json:"end"`

	Summary backtest.Summary `json:"summary"`
	Sortino float64          `json:"sortino"`

	Transitions []regime.Transition  `json:"transitions"`
	Attribution []RegimeAttribution  `json:"attribution"`
	Drawdowns   []DrawdownEpisode    `json:"drawdowns"` // deepest first
	RegimeNames map[regime.ID]string `json:"regime_names"`

	// 벤치마크 대비 (벤치마크 없으면 0)
	OutperformMonths int `json:"outperform_months"`
}

// maxEpisodes caps the drawdown table
const maxEpisodes = 5

// Analyze builds the report; funds map fund codes to asset classes for attribution
func (a *Analyzer) Analyze(res *backtest.Result, funds []allocation.Fund) *PerformanceReport {
	report := &PerformanceReport{
		RunID:       res.RunID,
		Start:       res.Params.Start,
		End:         res.Params.End,
		Summary:     res.Summary,
		Sortino:     Sortino(res.Returns(), res.Summary.AnnualizedReturn, res.Params.RiskFreeRate),
		Transitions: res.Transitions,
		Attribution: AttributeByRegime(res, funds),
		Drawdowns:   DrawdownEpisodes(res.Records),
		RegimeNames: a.regimeNames(),
	}
	if len(report.Drawdowns) > maxEpisodes {
		report.Drawdowns = report.Drawdowns[:maxEpisodes]
	}
	if res.HasBenchmark() {
		report.OutperformMonths = outperformMonths(res.Records, res.Params.InitialCapital)
	}

	a.logger.WithFields(map[string]interface{}{
		"run_id":      res.RunID,
		"months":      len(res.Records),
		"transitions": len(res.Transitions),
	}).Debug("performance report built")

	return report
}

func (a *Analyzer) regimeNames() map[regime.ID]string {
	names := make(map[regime.ID]string, 4)
	for _, id := range regime.All() {
		names[id] = string(id)
		if a.table == nil {
			continue
		}
		if r, ok := a.table.Regime(id); ok && r.ShortName != "" {
			names[id] = r.ShortName
		}
	}
	return names
}

// Sortino (annualReturn - rf) / annualised downside deviation below rf/12
func Sortino(monthly []float64, annualReturn, rf float64) float64 {
	if len(monthly) == 0 {
		return 0
	}
	floor := rf / 12
	sumSq := 0.0
	for _, r := range monthly {
		if d := r - floor; d < 0 {
			sumSq += d * d
		}
	}
	downside := math.Sqrt(sumSq/float64(len(monthly))) * math.Sqrt(12)
	if downside < 1e-12 {
		return 0
	}
	return (annualReturn - rf) / downside
}

// DrawdownEpisodes every underwater stretch, deepest first
func DrawdownEpisodes(records []backtest.MonthRecord) []DrawdownEpisode {
	var (
		out []DrawdownEpisode
		cur *DrawdownEpisode
	)
	for _, m := range records {
		if m.Drawdown <= 1e-12 {
			if cur != nil {
				cur.Recovery = m.Date
				out = append(out, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			cur = &DrawdownEpisode{Start: m.Date}
		}
		cur.Months++
		if m.Drawdown > cur.Depth {
			cur.Depth = m.Drawdown
			cur.Trough = m.Date
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Depth > out[j].Depth })
	return out
}

// outperformMonths counts months where the portfolio beat the benchmark
func outperformMonths(records []backtest.MonthRecord, capital float64) int {
	n, prev := 0, capital
	for _, m := range records {
		if prev > 0 && m.PortfolioReturn > m.BenchmarkValue/prev-1 {
			n++
		}
		prev = m.BenchmarkValue
	}
	return n
}

// =============================================================================
// Markdown
// =============================================================================

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// WriteMarkdown renders the report; rr is optional
func (p *PerformanceReport) WriteMarkdown(w io.Writer, rr *RiskReport) error {
	var b strings.Builder
	section := 0
	heading := func(title string) {
		section++
		fmt.Fprintf(&b, "\n## %d. %s\n\n", section, title)
	}
	name := func(id regime.ID) string {
		if n, ok := p.RegimeNames[id]; ok {
			return n
		}
		return string(id)
	}
	s := p.Summary

	fmt.Fprintf(&b, "# Backtest Report (%s ~ %s)\n\n", p.Start, p.End)
	fmt.Fprintf(&b, "Run ID: `%s`\n", p.RunID)

	heading("Summary")
	b.WriteString("| Metric | Value |\n| :--- | ---: |\n")
	fmt.Fprintf(&b, "| Months | %d |\n", s.TotalMonths)
	fmt.Fprintf(&b, "| Total Return | %s |\n", pct(s.TotalReturn))
	fmt.Fprintf(&b, "| Annualized Return | %s |\n", pct(s.AnnualizedReturn))
	fmt.Fprintf(&b, "| Annualized Volatility | %s |\n", pct(s.AnnualizedVol))
	fmt.Fprintf(&b, "| Sharpe | %.2f |\n", s.Sharpe)
	fmt.Fprintf(&b, "| Sortino | %.2f |\n", p.Sortino)
	fmt.Fprintf(&b, "| Max Drawdown | %s |\n", pct(s.MaxDrawdown))
	fmt.Fprintf(&b, "| Longest Drawdown | %d months |\n", s.LongestDrawdown)
	fmt.Fprintf(&b, "| Win Rate | %s |\n", pct(s.WinRate))
	fmt.Fprintf(&b, "| Rebalances | %d |\n", s.Rebalances)
	fmt.Fprintf(&b, "| End Value | %.2f |\n", s.EndValue)
	if s.BestRolling12M != nil {
		fmt.Fprintf(&b, "| Best 12m | %s (%s ~ %s) |\n", pct(s.BestRolling12M.Return), s.BestRolling12M.Start, s.BestRolling12M.End)
	}
	if s.WorstRolling12M != nil {
		fmt.Fprintf(&b, "| Worst 12m | %s (%s ~ %s) |\n", pct(s.WorstRolling12M.Return), s.WorstRolling12M.Start, s.WorstRolling12M.End)
	}

	heading("Performance by Regime")
	b.WriteString("| Regime | Months | Time | Avg Monthly | Annualized | Vol | Sharpe | Compounded | Share of Return |\n")
	b.WriteString("| :--- | ---: | ---: | ---: | ---: | ---: | ---: | ---: | ---: |\n")
	share := make(map[regime.ID]float64, len(p.Attribution))
	for _, a := range p.Attribution {
		share[a.Regime] = a.Share
	}
	for _, id := range regime.All() {
		st, ok := s.PerRegime[id]
		if !ok || st.Months == 0 {
			continue
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %.2f | %s | %s |\n",
			name(id), st.Months, pct(s.RegimeDistribution[id]), pct(st.AvgMonthly),
			pct(st.AnnualReturn), pct(st.AnnualVol), st.Sharpe, pct(st.TotalReturn), pct(share[id]))
	}

	if len(p.Attribution) > 0 {
		b.WriteString("\nAverage exposure by regime:\n\n")
		b.WriteString("| Regime |")
		for _, c := range allocation.AssetClasses() {
			fmt.Fprintf(&b, " %s |", c)
		}
		b.WriteString("\n| :--- |")
		for range allocation.AssetClasses() {
			b.WriteString(" ---: |")
		}
		b.WriteString("\n")
		for _, a := range p.Attribution {
			fmt.Fprintf(&b, "| %s |", name(a.Regime))
			for _, c := range allocation.AssetClasses() {
				fmt.Fprintf(&b, " %s |", pct(a.AvgExposure[c]))
			}
			b.WriteString("\n")
		}
	}

	heading("Regime Transitions")
	fmt.Fprintf(&b, "Total Transitions Detected: %d\n\n", len(p.Transitions))
	for _, t := range p.Transitions {
		fmt.Fprintf(&b, "- **%s**: %s → **%s** (Led by: %s)\n", t.Date, name(t.From), name(t.To), strings.Join(t.Drivers, ", "))
	}

	heading("Drawdowns")
	if len(p.Drawdowns) == 0 {
		b.WriteString("No drawdown.\n")
	} else {
		b.WriteString("| Start | Trough | Recovery | Depth | Months |\n| :--- | :--- | :--- | ---: | ---: |\n")
		for _, d := range p.Drawdowns {
			rec := d.Recovery
			if rec == "" {
				rec = "not recovered"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n", d.Start, d.Trough, rec, pct(d.Depth), d.Months)
		}
	}

	if bm := s.Benchmark; bm != nil {
		heading("Benchmark Comparison")
		b.WriteString("| Metric | Portfolio | Benchmark |\n| :--- | ---: | ---: |\n")
		fmt.Fprintf(&b, "| Total Return | %s | %s |\n", pct(s.TotalReturn), pct(bm.TotalReturn))
		fmt.Fprintf(&b, "| Annualized Return | %s | %s |\n", pct(s.AnnualizedReturn), pct(bm.AnnualizedReturn))
		fmt.Fprintf(&b, "| Max Drawdown | %s | %s |\n", pct(s.MaxDrawdown), pct(bm.MaxDrawdown))
		fmt.Fprintf(&b, "| End Value | %.2f | %.2f |\n", s.EndValue, bm.EndValue)
		fmt.Fprintf(&b, "\nExcess return (annualized): %s. Drawdown buffer: %s.\n", pct(bm.ExcessReturn), pct(bm.RelativeDrawdown))
		if s.TotalMonths > 0 {
			fmt.Fprintf(&b, "Portfolio beat the benchmark in %d of %d months (%.1f%%).\n",
				p.OutperformMonths, s.TotalMonths, float64(p.OutperformMonths)/float64(s.TotalMonths)*100)
		}
	}

	if len(s.Stress) > 0 {
		heading("Stress Period Analysis (Regime C & D)")
		b.WriteString("| Regime | Months | Portfolio | Benchmark | Portfolio Worst DD | Benchmark Worst DD |\n")
		b.WriteString("| :--- | ---: | ---: | ---: | ---: | ---: |\n")
		for _, sp := range s.Stress {
			bench, benchDD := "-", "-"
			if s.Benchmark != nil {
				bench, benchDD = pct(sp.BenchmarkReturn), pct(sp.BenchmarkWorstDrawdown)
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s |\n",
				name(sp.Regime), sp.Months, pct(sp.PortfolioReturn), bench, pct(sp.PortfolioWorstDrawdown), benchDD)
		}
	}

	if rr != nil {
		heading("Risk")
		fmt.Fprintf(&b, "Monthly VaR 95%%: %s, CVaR 95%%: %s\n", pct(s.VaR95), pct(s.CVaR95))
		if pr := rr.Portfolio; pr != nil {
			fmt.Fprintf(&b, "Monthly VaR 99%%: %s, CVaR 99%%: %s\n", pct(pr.VaR99), pct(pr.CVaR99))
		}
		if l := rr.Limits; l != nil {
			if l.Passed {
				b.WriteString("\nRisk limits: PASS\n")
			} else {
				fmt.Fprintf(&b, "\nRisk limits: FAIL (%s)\n", strings.Join(l.Violations, "; "))
			}
		}
		if mc := rr.MonteCarlo; mc != nil {
			fmt.Fprintf(&b, "\nMonte Carlo (%d paths, %d months, %s): mean %s, VaR 95%% %s, CVaR 95%% %s, P(loss) %s\n",
				mc.Config.NumSimulations, mc.Config.HoldingPeriod, mc.Config.Method,
				pct(mc.MeanReturn), pct(mc.VaR95), pct(mc.CVaR95), pct(mc.ProbabilityLoss))
		}
		if len(rr.Stress) > 0 {
			b.WriteString("\n| Scenario |")
			for _, id := range regime.All() {
				fmt.Fprintf(&b, " %s |", name(id))
			}
			b.WriteString("\n| :--- | ---: | ---: | ---: | ---: |\n")
			impacts := make(map[string]map[regime.ID]float64)
			var order []string
			for _, sr := range rr.Stress {
				if _, ok := impacts[sr.Scenario]; !ok {
					impacts[sr.Scenario] = make(map[regime.ID]float64, 4)
					order = append(order, sr.Scenario)
				}
				impacts[sr.Scenario][sr.Regime] = sr.Impact
			}
			for _, sc := range order {
				fmt.Fprintf(&b, "| %s |", sc)
				for _, id := range regime.All() {
					fmt.Fprintf(&b, " %s |", pct(impacts[sc][id]))
				}
				b.WriteString("\n")
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
