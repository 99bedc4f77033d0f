package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/internal/risk"
)

const (
	underwaterEpsilon = 1e-12
	zeroVolEpsilon    = 1e-12
)

// annualize (1+avg)^12-1 from a mean monthly return
func annualize(avgMonthly float64) float64 {
	return math.Pow(1+avgMonthly, 12) - 1
}

// annualVol population stdDev · √12
func annualVol(monthly []float64) float64 {
	if len(monthly) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(monthly, nil)
	if math.IsNaN(std) {
		return 0
	}
	return std * math.Sqrt(12)
}

// sharpe (annRet-rf)/annVol, 0 when volatility is 0 (up to rounding)
func sharpe(annRet, annVol, rf float64) float64 {
	if annVol < zeroVolEpsilon {
		return 0
	}
	return (annRet - rf) / annVol
}

// compound Π(1+r)-1
func compound(monthly []float64) float64 {
	cum := 1.0
	for _, r := range monthly {
		cum *= 1 + r
	}
	return cum - 1
}

// RegimeStatsOf statistics for the months attributed to one regime
func RegimeStatsOf(monthly []float64, rf float64) RegimeStats {
	if len(monthly) == 0 {
		return RegimeStats{}
	}
	avg := stat.Mean(monthly, nil)
	ann := annualize(avg)
	vol := annualVol(monthly)
	return RegimeStats{
		Months:       len(monthly),
		AvgMonthly:   avg,
		AnnualReturn: ann,
		AnnualVol:    vol,
		Sharpe:       sharpe(ann, vol, rf),
		TotalReturn:  compound(monthly),
	}
}

// Summarize computes the aggregate statistics of simulated months
func Summarize(records []MonthRecord, capital, rf float64) Summary {
	s := Summary{
		TotalMonths:        len(records),
		PerRegime:          make(map[regime.ID]RegimeStats),
		RegimeDistribution: make(map[regime.ID]float64),
		EndValue:           capital,
	}
	n := len(records)
	if n == 0 || capital <= 0 {
		return s
	}

	monthly := make([]float64, n)
	byRegime := make(map[regime.ID][]float64)
	wins := 0
	for i, m := range records {
		monthly[i] = m.PortfolioReturn
		byRegime[m.Regime] = append(byRegime[m.Regime], m.PortfolioReturn)
		if m.PortfolioReturn > 0 {
			wins++
		}
		if m.Drawdown > s.MaxDrawdown {
			s.MaxDrawdown = m.Drawdown
		}
		if m.Rebalanced {
			s.Rebalances++
		}
	}

	s.EndValue = records[n-1].PortfolioValue
	s.TotalReturn = s.EndValue/capital - 1
	if s.EndValue > 0 {
		s.AnnualizedReturn = math.Pow(s.EndValue/capital, 12/float64(n)) - 1
	} else {
		s.AnnualizedReturn = -1
	}
	s.AnnualizedVol = annualVol(monthly)
	s.Sharpe = sharpe(s.AnnualizedReturn, s.AnnualizedVol, rf)
	s.WinRate = float64(wins) / float64(n)
	s.LongestDrawdown = LongestDrawdown(records)
	s.BestRolling12M, s.WorstRolling12M = Rolling12M(records)

	v := risk.CalculateVaR(monthly, 0.95)
	s.VaR95, s.CVaR95 = v.VaR, v.CVaR

	for id, rs := range byRegime {
		s.PerRegime[id] = RegimeStatsOf(rs, rf)
		s.RegimeDistribution[id] = float64(len(rs)) / float64(n)
	}
	return s
}

// LongestDrawdown longest run of consecutive months below the running peak
// (peak to recovery, or to the end if never recovered)
func LongestDrawdown(records []MonthRecord) int {
	longest, run := 0, 0
	for _, m := range records {
		if m.Drawdown > underwaterEpsilon {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	return longest
}

// Rolling12M best and worst compounded 12-month windows; nil with less than a year
func Rolling12M(records []MonthRecord) (best, worst *RollingWindow) {
	if len(records) < 12 {
		return nil, nil
	}
	for end := 11; end < len(records); end++ {
		window := make([]float64, 0, 12)
		for i := end - 11; i <= end; i++ {
			window = append(window, records[i].PortfolioReturn)
		}
		w := &RollingWindow{
			Start:  records[end-11].Date,
			End:    records[end].Date,
			Return: compound(window),
		}
		if best == nil || w.Return > best.Return {
			best = w
		}
		if worst == nil || w.Return < worst.Return {
			worst = w
		}
	}
	return best, worst
}

// benchmarkReturns month-over-month benchmark returns; the first month is
// measured against the starting capital
func benchmarkReturns(records []MonthRecord, capital float64) []float64 {
	out := make([]float64, len(records))
	prev := capital
	for i, m := range records {
		if prev > 0 {
			out[i] = m.BenchmarkValue/prev - 1
		}
		prev = m.BenchmarkValue
	}
	return out
}

// CompareVsBenchmark benchmark statistics and the portfolio's edge over them
func CompareVsBenchmark(s Summary, records []MonthRecord, capital float64) *BenchmarkStats {
	n := len(records)
	if n == 0 || capital <= 0 {
		return nil
	}

	b := &BenchmarkStats{EndValue: records[n-1].BenchmarkValue}
	for _, m := range records {
		if m.BenchmarkDrawdown > b.MaxDrawdown {
			b.MaxDrawdown = m.BenchmarkDrawdown
		}
	}
	b.TotalReturn = b.EndValue/capital - 1
	if b.EndValue > 0 {
		b.AnnualizedReturn = math.Pow(b.EndValue/capital, 12/float64(n)) - 1
	} else {
		b.AnnualizedReturn = -1
	}
	b.ExcessReturn = s.AnnualizedReturn - b.AnnualizedReturn
	b.RelativeDrawdown = b.MaxDrawdown - s.MaxDrawdown
	return b
}

// StressComparison portfolio vs benchmark inside REGIME_C and REGIME_D months.
// Regimes that never occurred are omitted. Benchmark fields stay 0 without a benchmark.
func StressComparison(records []MonthRecord, capital float64, withBenchmark bool) []StressPeriod {
	bench := make([]float64, len(records))
	if withBenchmark {
		bench = benchmarkReturns(records, capital)
	}

	var out []StressPeriod
	for _, id := range []regime.ID{regime.RegimeC, regime.RegimeD} {
		p := StressPeriod{Regime: id}
		var port, bm []float64
		for i, m := range records {
			if m.Regime != id {
				continue
			}
			p.Months++
			port = append(port, m.PortfolioReturn)
			bm = append(bm, bench[i])
			p.PortfolioWorstDrawdown = math.Max(p.PortfolioWorstDrawdown, m.Drawdown)
			p.BenchmarkWorstDrawdown = math.Max(p.BenchmarkWorstDrawdown, m.BenchmarkDrawdown)
		}
		if p.Months == 0 {
			continue
		}
		p.PortfolioReturn = compound(port)
		p.BenchmarkReturn = compound(bm)
		out = append(out, p)
	}
	return out
}
