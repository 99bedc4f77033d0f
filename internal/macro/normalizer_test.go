package macro

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(i int) string {
	return fmt.Sprintf("%04d-%02d", 2000+i/12, i%12+1)
}

func TestResolveDebtStressFallbackChain(t *testing.T) {
	tests := []struct {
		name   string
		rec    Record
		want   float64
		source Source
	}{
		{
			name:   "override wins",
			rec:    Record{DebtStress: Float(4.2), InterestExpense: Float(10), GDPNominal: Float(100)},
			want:   4.2,
			source: SourceOverride,
		},
		{
			name:   "interest over nominal gdp",
			rec:    Record{InterestExpense: Float(5), GDPNominal: Float(200), GSecYield: Float(6)},
			want:   2.5,
			source: SourceComputed,
		},
		{
			name:   "nominal falls back to real index times 1.5",
			rec:    Record{InterestExpense: Float(6), GDPIndex: Float(100)},
			want:   4.0,
			source: SourceComputed,
		},
		{
			name:   "yield proxy",
			rec:    Record{GSecYield: Float(5)},
			want:   4.0,
			source: SourceProxy,
		},
		{
			name:   "yield proxy with default yield",
			rec:    Record{},
			want:   5.6,
			source: SourceProxy,
		},
		{
			name:   "interest without gdp uses proxy",
			rec:    Record{InterestExpense: Float(3), GSecYield: Float(10)},
			want:   8.0,
			source: SourceProxy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := resolveDebtStress(tt.rec, 7.0)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.source, src)
		})
	}
}

func TestResolveRealRateAndGold(t *testing.T) {
	rr, src := resolveRealRate(Record{RepoRate: Float(6.5), CPIInflation: Float(5)})
	assert.InDelta(t, 1.5, rr, 1e-9)
	assert.Equal(t, SourceComputed, src)

	rr, src = resolveRealRate(Record{RealRate: Float(-1), RepoRate: Float(6.5), CPIInflation: Float(5)})
	assert.Equal(t, -1.0, rr)
	assert.Equal(t, SourceOverride, src)

	gold, src := resolveGoldBuying(Record{ForexReserves: Float(600)})
	assert.InDelta(t, 0.6, gold, 1e-9)
	assert.Equal(t, SourceProxy, src)

	gold, src = resolveGoldBuying(Record{})
	assert.Equal(t, 0.0, gold)
	assert.Equal(t, SourceDefault, src)
}

func TestVolatilityRatioZeroGrowthVolIsNeutral(t *testing.T) {
	got, _ := resolveVolatilityRatio(Record{}, 2.0, 0, true)
	assert.Equal(t, 1.0, got)

	got, _ = resolveVolatilityRatio(Record{}, 2.0, 1.0, true)
	assert.Equal(t, 2.0, got)

	got, src := resolveVolatilityRatio(Record{}, 2.0, 1.0, false)
	assert.Equal(t, 1.0, got)
	assert.Equal(t, SourceDefault, src)

	got, src = resolveVolatilityRatio(Record{VolatilityRatio: Float(0.7)}, 2.0, 1.0, false)
	assert.Equal(t, 0.7, got)
	assert.Equal(t, SourceOverride, src)
}

func TestEnrichForwardFillsBeforeDerivation(t *testing.T) {
	records := []Record{
		{Date: "2020-01", RepoRate: Float(4), CPIInflation: Float(2), SP500: Float(100), GSecYield: Float(6)},
		{Date: "2020-02", CPIInflation: Float(3), SP500: Float(110)},
		{Date: "2020-03"},
	}

	out, err := NewNormalizer(DefaultOptions()).Enrich(records)
	require.NoError(t, err)
	require.Len(t, out, 3)

	// repoRate carried from January
	assert.InDelta(t, 1.0, out[1].Derived.RealRate, 1e-9)
	// both repoRate and cpi carried into March
	assert.InDelta(t, 1.0, out[2].Derived.RealRate, 1e-9)

	assert.InDelta(t, 0.0, out[0].Derived.EquityReturn, 1e-12)
	assert.InDelta(t, 0.10, out[1].Derived.EquityReturn, 1e-12)
	// filled price means a flat month, not a skipped one
	assert.InDelta(t, 0.0, out[2].Derived.EquityReturn, 1e-12)

	// caller input untouched
	assert.Nil(t, records[2].RepoRate)
}

func TestEnrichRejectsBadInput(t *testing.T) {
	n := NewNormalizer(DefaultOptions())

	_, err := n.Enrich(nil)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = n.Enrich([]Record{{Date: "2020-02"}, {Date: "2020-01"}})
	assert.ErrorIs(t, err, ErrUnordered)

	_, err = n.Enrich([]Record{{Date: "2020-01"}, {Date: "2020-01-15"}})
	assert.ErrorIs(t, err, ErrUnordered)

	_, err = n.Enrich([]Record{{Date: "not-a-date"}})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEnrichBondReturnAndMomentum(t *testing.T) {
	records := []Record{
		{Date: "2020-01", GSecYield: Float(7.0), CPIInflation: Float(4)},
		{Date: "2020-02", GSecYield: Float(6.5), CPIInflation: Float(5)},
		{Date: "2020-03", GSecYield: Float(6.0), CPIInflation: Float(6)},
		{Date: "2020-04", GSecYield: Float(6.5), CPIInflation: Float(5)},
	}

	out, err := NewNormalizer(DefaultOptions()).Enrich(records)
	require.NoError(t, err)

	assert.InDelta(t, 0.005, out[1].Derived.BondReturn, 1e-12)
	assert.InDelta(t, -0.005, out[3].Derived.BondReturn, 1e-12)

	// 3-month absolute change, zero while warming up
	assert.Equal(t, 0.0, out[2].Derived.InflationMomentum)
	assert.InDelta(t, 1.0, out[3].Derived.InflationMomentum, 1e-12)
}

func TestEnrichVolatilityRatioAndCorrelation(t *testing.T) {
	var records []Record
	for i := 0; i < 24; i++ {
		cpi := 4.0
		if i%2 == 1 {
			cpi = 6.0
		}
		records = append(records, Record{
			Date:         month(i),
			CPIInflation: Float(cpi),
			GDPGrowth:    Float(5.0), // flat growth => zero growth vol
			SP500:        Float(100 + float64(i)),
			GSecYield:    Float(6.0), // flat yield => zero bond variance
		})
	}

	out, err := NewNormalizer(DefaultOptions()).Enrich(records)
	require.NoError(t, err)

	last := out[len(out)-1].Derived
	assert.InDelta(t, 1.0, last.InflationVol, 1e-9)
	assert.Equal(t, 1.0, last.VolatilityRatio, "zero growth vol is neutral")
	assert.Equal(t, 0.0, last.BondEquityCorr, "zero variance correlation is 0")
	assert.False(t, math.IsNaN(last.BondEquityCorr))
}

func TestEnrichPositiveCorrelation(t *testing.T) {
	// yields fall while equities rise => bond returns and equity returns move together
	var records []Record
	price, yield := 100.0, 8.0
	for i := 0; i < 14; i++ {
		step := float64(i%3 + 1)
		price *= 1 + step/100
		yield -= step / 10
		records = append(records, Record{Date: month(i), SP500: Float(price), GSecYield: Float(yield)})
	}

	out, err := NewNormalizer(DefaultOptions()).Enrich(records)
	require.NoError(t, err)
	assert.Greater(t, out[len(out)-1].Derived.BondEquityCorr, 0.9)
}

func TestEquityVolZOnlyAfterLongWindow(t *testing.T) {
	var records []Record
	price := 100.0
	for i := 0; i < 72; i++ {
		price *= 1 + float64(i%5)/100
		records = append(records, Record{Date: month(i), SP500: Float(price)})
	}

	out, err := NewNormalizer(DefaultOptions()).Enrich(records)
	require.NoError(t, err)
	// 12-month vol exists from month 11, its 60-month z-score from month 70
	assert.Nil(t, out[69].Derived.EquityVolZ)
	require.NotNil(t, out[70].Derived.EquityVolZ)
	assert.LessOrEqual(t, math.Abs(*out[71].Derived.EquityVolZ), ZScoreClip)
}

// warmUpRecords 13 months with moving cpi, gdp, prices and yields
func warmUpRecords() []Record {
	prices := []float64{100, 102, 101, 104, 103, 107, 106, 110, 108, 113, 112, 115, 118}
	yields := []float64{7.0, 6.9, 6.95, 6.8, 6.85, 6.6, 6.7, 6.5, 6.6, 6.4, 6.45, 6.3, 6.1}

	records := make([]Record, len(prices))
	for i := range prices {
		records[i] = Record{
			Date:         month(i),
			CPIInflation: Float(4 + float64(i%2)),
			GDPGrowth:    Float(6 + 0.25*float64(i%2)),
			SP500:        Float(prices[i]),
			GSecYield:    Float(yields[i]),
		}
	}
	return records
}

func TestEnrichWarmUpUsesNeutralDefaults(t *testing.T) {
	out, err := NewNormalizer(DefaultOptions()).Enrich(warmUpRecords())
	require.NoError(t, err)
	require.Len(t, out, 13)

	tests := []struct {
		index    int
		infVol   float64
		ratio    float64
		source   Source
		corrZero bool
	}{
		{0, 0, 1.0, SourceDefault, true},
		{1, 0, 1.0, SourceDefault, true},
		{5, 0, 1.0, SourceDefault, true},
		{10, 0, 1.0, SourceDefault, true},
		{11, 0.5, 4.0, SourceComputed, false},
		{12, 0.5, 4.0, SourceComputed, false},
	}

	for _, tt := range tests {
		t.Run(month(tt.index), func(t *testing.T) {
			d := out[tt.index].Derived
			assert.InDelta(t, tt.infVol, d.InflationVol, 1e-12)
			assert.InDelta(t, tt.ratio, d.VolatilityRatio, 1e-12)
			assert.Equal(t, tt.source, d.Sources["inflationVol"])
			assert.Equal(t, tt.source, d.Sources["volatilityRatio"])
			assert.Equal(t, tt.source, d.Sources["bondEquityCorr"])
			if tt.corrZero {
				assert.Equal(t, 0.0, d.BondEquityCorr)
				assert.Equal(t, 0.0, d.GrowthVol)
			} else {
				assert.Greater(t, d.BondEquityCorr, 0.9)
				assert.InDelta(t, 0.125, d.GrowthVol, 1e-12)
			}
		})
	}
}

func TestEnrichCorrelationCountsFirstMonthAsFlat(t *testing.T) {
	out, err := NewNormalizer(DefaultOptions()).Enrich(warmUpRecords())
	require.NoError(t, err)

	eq := make([]float64, 12)
	bond := make([]float64, 12)
	for i := 0; i < 12; i++ {
		eq[i] = out[i].Derived.EquityReturn
		bond[i] = out[i].Derived.BondReturn
	}
	require.Equal(t, 0.0, eq[0])
	require.Equal(t, 0.0, bond[0])

	got := out[11].Derived.BondEquityCorr
	assert.InDelta(t, Correlation(eq, bond), got, 1e-12)
	// dropping the flat first month gives a different value
	assert.Greater(t, math.Abs(got-Correlation(eq[1:], bond[1:])), 1e-5)
}

func TestEnrichOverridesSkipWarmUp(t *testing.T) {
	records := []Record{
		{Date: "2020-01", InflationVol: Float(2.5), VolatilityRatio: Float(1.8), BondEquityCorr: Float(0.3)},
		{Date: "2020-02"},
	}
	out, err := NewNormalizer(DefaultOptions()).Enrich(records)
	require.NoError(t, err)

	d := out[0].Derived
	assert.Equal(t, 2.5, d.InflationVol)
	assert.Equal(t, 1.8, d.VolatilityRatio)
	assert.Equal(t, 0.3, d.BondEquityCorr)
	assert.Equal(t, SourceOverride, d.Sources["bondEquityCorr"])

	// overrides are not forward-filled
	assert.Equal(t, SourceDefault, out[1].Derived.Sources["volatilityRatio"])
}

func TestZScoreTable(t *testing.T) {
	var records []Record
	for i := 0; i < 61; i++ {
		records = append(records, Record{Date: month(i), CPIInflation: Float(float64(i))})
	}
	records[5].RepoRate = Float(5)

	table := NewNormalizer(DefaultOptions()).ZScoreTable(records)
	require.Contains(t, table, "cpiInflation")
	assert.Len(t, table["cpiInflation"], 2)
	// repoRate forward-filled from month 5 only has 56 points
	assert.NotContains(t, table, "repoRate")
}
