package backtest

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/macro"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/internal/regimeconfig"
)

func month(i int) string {
	return fmt.Sprintf("%04d-%02d", 2020+i/12, i%12+1)
}

// calmRecord satisfies every REGIME_C exit condition and leads with REGIME_A
func calmRecord(date string) macro.Record {
	f := macro.Float
	return macro.Record{
		Date: date, RealRate: f(2.0), DebtStress: f(2.0), BondEquityCorr: f(-0.5), CBGoldBuying: f(-0.5),
		InflationVol: f(1.0), VolatilityRatio: f(0.6), EquityVolatility: f(-1.0), CreditSpread: f(-1.0),
	}
}

func fiscalRecord(date string) macro.Record {
	f := macro.Float
	return macro.Record{
		Date: date, RealRate: f(-2.0), DebtStress: f(10.0), BondEquityCorr: f(0.4), CBGoldBuying: f(2.0),
		InflationVol: f(3.5), VolatilityRatio: f(2.2), EquityVolatility: f(0.5), CreditSpread: f(0.5),
	}
}

func crisisRecord(date string) macro.Record {
	f := macro.Float
	return macro.Record{
		Date: date, RealRate: f(0.5), DebtStress: f(4.5), BondEquityCorr: f(0.9), CBGoldBuying: f(0),
		InflationVol: f(1.0), VolatilityRatio: f(1.0), EquityVolatility: f(4.5), CreditSpread: f(4.0),
		GDPGrowth: f(-2.0),
	}
}

func testFunds() []allocation.Fund {
	return []allocation.Fund{
		{Code: "FUND_A", Name: "Nifty 50 Index", Category: "Equity Large Cap"},
		{Code: "FUND_B", Name: "Gold ETF", Category: "Gold"},
	}
}

func twoFundReturns() *ReturnSeries {
	s := NewReturnSeries()
	s.Set("FUND_A", month(0), 0.10)
	s.Set("FUND_A", month(1), -0.05)
	s.Set("FUND_B", month(0), 0.05)
	s.Set("FUND_B", month(1), 0.02)
	return s
}

func newTestEngine(t *testing.T) (*Engine, *allocation.Table) {
	t.Helper()
	cfg, _ := regimeconfig.Default()
	table, err := cfg.Table()
	require.NoError(t, err)
	return NewEngine(table, regime.NewDetector(cfg.Params()), macro.NewNormalizer(macro.DefaultOptions()), nil), table
}

func TestTwoMonthBacktestCompoundsTargetWeights(t *testing.T) {
	engine, table := newTestEngine(t)
	funds := testFunds()
	returns := twoFundReturns()

	res, err := engine.Run(context.Background(), Input{
		Funds:   funds,
		Returns: returns,
		Macro:   []macro.Record{{Date: month(0)}, {Date: month(1)}},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 2, res.Summary.TotalMonths)

	growth := 1.0
	for _, rec := range res.Records {
		want := FundWeights(funds, table.Targets(rec.Regime))
		assert.Equal(t, want, rec.Weights, rec.Date)

		r := 0.0
		for code, w := range want {
			v, _ := returns.Get(code, rec.Date)
			r += w * v
		}
		assert.InDelta(t, r, rec.PortfolioReturn, 1e-12, rec.Date)
		growth *= 1 + r
	}
	assert.InDelta(t, growth-1, res.Summary.TotalReturn, 1e-12)
	assert.InDelta(t, DefaultInitialCapital*growth, res.Summary.EndValue, 1e-6)
	assert.NotEmpty(t, res.RunID)
}

func TestCalmMonthsHoldOnlyEquity(t *testing.T) {
	engine, _ := newTestEngine(t)

	res, err := engine.Run(context.Background(), Input{
		Funds:   testFunds(),
		Returns: twoFundReturns(),
		Macro:   []macro.Record{calmRecord(month(0)), calmRecord(month(1))},
	})
	require.NoError(t, err)

	for _, rec := range res.Records {
		assert.Equal(t, regime.RegimeA, rec.Regime)
		// REGIME_A has no gold target, so the gold fund is skipped
		assert.Equal(t, map[string]float64{"FUND_A": 1.0}, rec.Weights)
	}
	assert.InDelta(t, 1.10*0.95-1, res.Summary.TotalReturn, 1e-12)
	assert.InDelta(t, 0.0, res.Records[0].Drawdown, 1e-12)
	assert.InDelta(t, 0.05, res.Records[1].Drawdown, 1e-12)
	assert.InDelta(t, 0.05, res.Summary.MaxDrawdown, 1e-12)
	assert.Equal(t, 1.0, res.Summary.RegimeDistribution[regime.RegimeA])
	assert.Empty(t, res.Transitions)
}

func TestFiscalDominanceSplitsEquityAndGold(t *testing.T) {
	engine, _ := newTestEngine(t)

	res, err := engine.Run(context.Background(), Input{
		Funds:   testFunds(),
		Returns: twoFundReturns(),
		Macro:   []macro.Record{fiscalRecord(month(0)), fiscalRecord(month(1))},
	})
	require.NoError(t, err)

	wantA, wantB := 0.43/0.53, 0.10/0.53
	for _, rec := range res.Records {
		assert.Equal(t, regime.RegimeC, rec.Regime)
		assert.InDelta(t, wantA, rec.Weights["FUND_A"], 1e-12)
		assert.InDelta(t, wantB, rec.Weights["FUND_B"], 1e-12)
	}
	r1 := wantA*0.10 + wantB*0.05
	r2 := wantA*-0.05 + wantB*0.02
	assert.InDelta(t, (1+r1)*(1+r2)-1, res.Summary.TotalReturn, 1e-12)
}

func TestMissingReturnContributesZero(t *testing.T) {
	engine, _ := newTestEngine(t)
	returns := NewReturnSeries()
	returns.Set("FUND_A", month(0), 0.10)
	returns.Set("FUND_B", month(0), 0.05)
	returns.Set("FUND_B", month(1), 0.02) // FUND_A missing in month 1

	res, err := engine.Run(context.Background(), Input{
		Funds:   testFunds(),
		Returns: returns,
		Macro:   []macro.Record{fiscalRecord(month(0)), fiscalRecord(month(1))},
	})
	require.NoError(t, err)

	rec := res.Records[1]
	assert.NotContains(t, rec.AssetReturns, "FUND_A")
	assert.InDelta(t, rec.Weights["FUND_B"]*0.02, rec.PortfolioReturn, 1e-12)
}

func TestDrawdownInvariants(t *testing.T) {
	engine, _ := newTestEngine(t)
	returns := NewReturnSeries()
	var records []macro.Record
	for i := 0; i < 24; i++ {
		records = append(records, calmRecord(month(i)))
		returns.Set("FUND_A", month(i), 0.04*math.Sin(float64(i)))
	}

	res, err := engine.Run(context.Background(), Input{Funds: testFunds(), Returns: returns, Macro: records})
	require.NoError(t, err)

	prevPeak := res.Params.InitialCapital
	for _, rec := range res.Records {
		assert.GreaterOrEqual(t, rec.Peak, rec.PortfolioValue)
		assert.GreaterOrEqual(t, rec.Peak, prevPeak)
		assert.GreaterOrEqual(t, rec.Drawdown, 0.0)
		assert.Less(t, rec.Drawdown, 1.0)
		assert.InDelta(t, (rec.Peak-rec.PortfolioValue)/rec.Peak, rec.Drawdown, 1e-12)
		prevPeak = rec.Peak
	}
	assert.Greater(t, res.Summary.LongestDrawdown, 0)
	require.NotNil(t, res.Summary.BestRolling12M)
	assert.GreaterOrEqual(t, res.Summary.BestRolling12M.Return, res.Summary.WorstRolling12M.Return)
}

func TestAnnualisation(t *testing.T) {
	engine, _ := newTestEngine(t)
	returns := NewReturnSeries()
	var records []macro.Record
	for i := 0; i < 12; i++ {
		records = append(records, calmRecord(month(i)))
		returns.Set("FUND_A", month(i), 0.01)
	}

	res, err := engine.Run(context.Background(), Input{Funds: testFunds(), Returns: returns, Macro: records})
	require.NoError(t, err)

	want := math.Pow(1.01, 12) - 1 // 12.68%
	assert.InDelta(t, want, res.Summary.AnnualizedReturn, 1e-9)
	assert.InDelta(t, want, res.Summary.PerRegime[regime.RegimeA].AnnualReturn, 1e-9)
	assert.InDelta(t, 0.0, res.Summary.AnnualizedVol, 1e-9)
	assert.Equal(t, 0.0, res.Summary.Sharpe)
	assert.Equal(t, 1.0, res.Summary.WinRate)
	assert.Equal(t, 12, res.Summary.PerRegime[regime.RegimeA].Months)
}

func calmToCrisis() []macro.Record {
	return []macro.Record{
		calmRecord(month(0)), calmRecord(month(1)),
		crisisRecord(month(2)), crisisRecord(month(3)), crisisRecord(month(4)), crisisRecord(month(5)),
	}
}

func TestQuarterlyRebalanceHoldsWeights(t *testing.T) {
	engine, table := newTestEngine(t)
	funds := testFunds()

	res, err := engine.Run(context.Background(), Input{
		Funds:     funds,
		Returns:   twoFundReturns(),
		Macro:     calmToCrisis(),
		Rebalance: Quarterly,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 6)

	for i, rec := range res.Records {
		if i%3 == 0 {
			assert.True(t, rec.Rebalanced, rec.Date)
			assert.Equal(t, FundWeights(funds, table.Targets(rec.Regime)), rec.Weights, rec.Date)
			continue
		}
		assert.False(t, rec.Rebalanced, rec.Date)
		assert.Equal(t, res.Records[i-1].Weights, rec.Weights, rec.Date)
	}

	// the regime changes in month 2, weights wait for month 3
	assert.Equal(t, regime.RegimeD, res.Records[2].Regime)
	assert.Equal(t, res.Records[0].Weights, res.Records[2].Weights)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, month(2), res.Transitions[0].Date)
	assert.Equal(t, 2, res.Summary.Rebalances)
}

func TestRebalanceOnTransition(t *testing.T) {
	engine, table := newTestEngine(t)
	funds := testFunds()

	res, err := engine.Run(context.Background(), Input{
		Funds:                 funds,
		Returns:               twoFundReturns(),
		Macro:                 calmToCrisis(),
		Rebalance:             Annual,
		RebalanceOnTransition: true,
	})
	require.NoError(t, err)

	assert.True(t, res.Records[2].Rebalanced)
	assert.Equal(t, FundWeights(funds, table.Targets(regime.RegimeD)), res.Records[2].Weights)
	assert.False(t, res.Records[3].Rebalanced)
}

func TestNoLookahead(t *testing.T) {
	engine, _ := newTestEngine(t)
	all := calmToCrisis()

	short, err := engine.Run(context.Background(), Input{Funds: testFunds(), Returns: twoFundReturns(), Macro: all[:3]})
	require.NoError(t, err)
	full, err := engine.Run(context.Background(), Input{Funds: testFunds(), Returns: twoFundReturns(), Macro: all})
	require.NoError(t, err)

	for i := range short.Records {
		assert.Equal(t, short.Records[i].Regime, full.Records[i].Regime)
		assert.Equal(t, short.Records[i].PortfolioValue, full.Records[i].PortfolioValue)
		assert.Equal(t, short.Detections[i].Probabilities, full.Detections[i].Probabilities)
	}
}

func TestDateRangeKeepsEarlierHistoryForWindows(t *testing.T) {
	engine, _ := newTestEngine(t)
	var records []macro.Record
	for i := 0; i < 6; i++ {
		records = append(records, calmRecord(month(i)))
	}

	res, err := engine.Run(context.Background(), Input{
		Funds: testFunds(), Returns: twoFundReturns(), Macro: records,
		Start: month(2), End: "2020-05-15",
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, month(2), res.Params.Start)
	assert.Equal(t, month(4), res.Params.End)
}

func TestRunFailures(t *testing.T) {
	engine, _ := newTestEngine(t)
	two := []macro.Record{calmRecord(month(0)), calmRecord(month(1))}
	sf := 1.5

	tests := []struct {
		name string
		in   Input
		want error
	}{
		{"no macro", Input{Funds: testFunds()}, ErrInsufficientData},
		{"one month", Input{Funds: testFunds(), Macro: two[:1]}, ErrInsufficientData},
		{"malformed dates", Input{Funds: testFunds(), Macro: []macro.Record{{Date: "x"}, {Date: "y"}}}, ErrInsufficientData},
		{"range leaves one month", Input{Funds: testFunds(), Macro: two, Start: month(1)}, ErrInsufficientData},
		{"no funds", Input{Macro: two}, ErrInvalidInput},
		{"bad frequency", Input{Funds: testFunds(), Macro: two, Rebalance: "weekly"}, ErrInvalidInput},
		{"negative capital", Input{Funds: testFunds(), Macro: two, InitialCapital: -1}, ErrInvalidInput},
		{"smoothing out of range", Input{Funds: testFunds(), Macro: two, SmoothingFactor: &sf}, ErrInvalidInput},
		{"start after end", Input{Funds: testFunds(), Macro: two, Start: month(1), End: month(0)}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInsufficientDataMessage(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Run(context.Background(), Input{Funds: testFunds(), Macro: []macro.Record{calmRecord(month(0))}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need at least 2 months of macro data to backtest")
}

func TestBenchmarkTracking(t *testing.T) {
	engine, _ := newTestEngine(t)

	res, err := engine.Run(context.Background(), Input{
		Funds:   testFunds(),
		Returns: twoFundReturns(),
		Macro:   []macro.Record{calmRecord(month(0)), calmRecord(month(1)), calmRecord(month(2))},
		Benchmark: map[string]float64{
			"2019-12": 100, month(0): 110, month(2): 99, // month 1 carries
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 110000, res.Records[0].BenchmarkValue, 1e-6)
	assert.InDelta(t, 110000, res.Records[1].BenchmarkValue, 1e-6)
	assert.InDelta(t, 99000, res.Records[2].BenchmarkValue, 1e-6)
	assert.InDelta(t, 0.1, res.Records[2].BenchmarkDrawdown, 1e-12)

	require.NotNil(t, res.Summary.Benchmark)
	b := res.Summary.Benchmark
	assert.InDelta(t, -0.01, b.TotalReturn, 1e-12)
	assert.InDelta(t, 0.1, b.MaxDrawdown, 1e-12)
	assert.InDelta(t, res.Summary.AnnualizedReturn-b.AnnualizedReturn, b.ExcessReturn, 1e-12)
	assert.InDelta(t, b.MaxDrawdown-res.Summary.MaxDrawdown, b.RelativeDrawdown, 1e-12)
}

func TestCancelledContext(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, Input{Funds: testFunds(), Macro: []macro.Record{calmRecord(month(0)), calmRecord(month(1))}})
	assert.ErrorIs(t, err, context.Canceled)
}
