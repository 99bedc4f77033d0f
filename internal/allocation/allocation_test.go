package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/internal/regime"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable([]Regime{
		{ID: regime.RegimeA, Name: "Monetary Credibility", Bands: Bands{
			Equity: {0.50, 0.65, 0.575}, Hybrid: {0.10, 0.15, 0.125}, DebtLong: {0, 0.25, 0.15},
			DebtMedium: {0.05, 0.25, 0.10}, DebtShort: {0, 0.10, 0.05}, Gold: {0, 0.05, 0},
		}},
		{ID: regime.RegimeB, Name: "Disinflationary Growth", Bands: Bands{
			Equity: {0.45, 0.65, 0.46}, Hybrid: {0.05, 0.20, 0.125}, DebtLong: {0, 0.30, 0.20},
			DebtMedium: {0.10, 0.30, 0.125}, DebtShort: {0.02, 0.08, 0.05}, Gold: {0.02, 0.06, 0.04},
		}},
		{ID: regime.RegimeC, Name: "Fiscal Dominance", Bands: Bands{
			Equity: {0.40, 0.50, 0.43}, Hybrid: {0.10, 0.12, 0.11}, DebtLong: {0, 0, 0},
			DebtMedium: {0.15, 0.25, 0.19}, DebtShort: {0.15, 0.20, 0.17}, Gold: {0.05, 0.15, 0.10},
		}},
		{ID: regime.RegimeD, Name: "Crisis", Bands: Bands{
			Equity: {0.20, 0.30, 0.25}, Hybrid: {0.10, 0.20, 0.15}, DebtLong: {0, 0.02, 0},
			DebtMedium: {0.05, 0.15, 0.10}, DebtShort: {0.25, 0.45, 0.35}, Gold: {0.10, 0.20, 0.15},
		}},
	})
	require.NoError(t, err)
	return table
}

func TestNewTableRequiresAllRegimes(t *testing.T) {
	_, err := NewTable([]Regime{{ID: regime.RegimeA}})
	assert.Error(t, err)

	_, err = NewTable([]Regime{{ID: "REGIME_X"}})
	assert.Error(t, err)
}

func TestTargetsSumToOne(t *testing.T) {
	table := testTable(t)
	for _, r := range table.Regimes() {
		assert.InDelta(t, 1.0, r.Bands.TargetSum(), 1e-9, r.ID)
	}
	assert.GreaterOrEqual(t, table.Bands(regime.RegimeC)[Gold].Target, 0.10)
}

func TestClassifyCategory(t *testing.T) {
	tests := []struct {
		category string
		name     string
		want     AssetClass
	}{
		{"Other Scheme - Gold ETF", "", Gold},
		{"", "Nippon India Silver ETF", Gold},
		{"Hybrid Scheme - Balanced Advantage", "", Hybrid},
		{"Hybrid Scheme - Arbitrage Fund", "", Hybrid},
		{"Debt Scheme - Liquid Fund", "", DebtShort},
		{"Debt Scheme - Overnight Fund", "", DebtShort},
		{"Debt Scheme - Gilt Fund", "", DebtLong},
		{"Debt Scheme - Long Duration Fund", "", DebtLong},
		{"Debt Scheme - Corporate Bond Fund", "", DebtMedium},
		{"Equity Scheme - Flexi Cap Fund", "", Equity},
		{"", "Parag Parikh Flexi Cap", Equity},
		{"", "", Equity},
	}
	for _, tt := range tests {
		if got := ClassifyCategory(tt.category, tt.name); got != tt.want {
			t.Errorf("ClassifyCategory(%q, %q) = %s, want %s", tt.category, tt.name, got, tt.want)
		}
	}
}

func TestFundClassPrefersExplicit(t *testing.T) {
	f := Fund{Code: "X", Category: "Gold ETF", AssetClass: Equity}
	assert.Equal(t, Equity, f.Class())

	f.AssetClass = ""
	assert.Equal(t, Gold, f.Class())
}

func TestMissingAssetClasses(t *testing.T) {
	table := testTable(t)
	funds := []Fund{
		{Code: "FUND_A", AssetClass: Equity},
		{Code: "FUND_H", Category: "Balanced Advantage"},
		{Code: "FUND_L", Category: "Liquid"},
	}

	missing := table.MissingAssetClasses(regime.RegimeC, funds)
	assert.Equal(t, []AssetClass{DebtMedium, Gold}, missing)
	// REGIME_C keeps a 0/0/0 DEBT_LONG band; a zero target is allowed, not required
	_, hasBand := table.Bands(regime.RegimeC)[DebtLong]
	assert.True(t, hasBand)
	assert.NotContains(t, table.Required(regime.RegimeC), DebtLong)
	assert.NotContains(t, missing, DebtLong)

	// REGIME_A has a zero gold target, so gold is not required
	missing = table.MissingAssetClasses(regime.RegimeA, funds)
	assert.Equal(t, []AssetClass{DebtLong, DebtMedium}, missing)
	assert.NotContains(t, missing, Gold)
}

func TestViolations(t *testing.T) {
	table := testTable(t)
	weights := map[AssetClass]float64{
		Equity: 0.60, Hybrid: 0.11, DebtMedium: 0.15, DebtShort: 0.14,
	}

	got := table.Violations(regime.RegimeC, weights)
	require.Len(t, got, 3)
	assert.Equal(t, Equity, got[0].AssetClass)
	assert.Equal(t, "above_max", got[0].Type)
	assert.Equal(t, DebtShort, got[1].AssetClass)
	assert.Equal(t, "below_min", got[1].Type)
	assert.Equal(t, Gold, got[2].AssetClass)
	assert.Equal(t, 0.0, got[2].Actual)

	// exactly on the boundary is fine
	assert.Empty(t, table.Violations(regime.RegimeC, table.Targets(regime.RegimeC)))
}

func TestTransitionProgress(t *testing.T) {
	assert.Equal(t, 0.0, TransitionProgress(0))
	assert.Equal(t, 0.5, TransitionProgress(6))
	assert.Equal(t, 1.0, TransitionProgress(12))
	assert.Equal(t, 1.0, TransitionProgress(30))
}

func TestInterpolateEndpoints(t *testing.T) {
	table := testTable(t)
	for _, pair := range [][2]regime.ID{{regime.RegimeA, regime.RegimeD}, {regime.RegimeC, regime.RegimeB}} {
		from, to := pair[0], pair[1]
		start := table.Interpolate(from, to, 0)
		end := table.Interpolate(from, to, 1)
		for _, c := range AssetClasses() {
			assert.InDelta(t, table.Bands(from)[c].Target, start[c].Target, 1e-12, "%s→%s %s", from, to, c)
			assert.InDelta(t, table.Bands(to)[c].Target, end[c].Target, 1e-12, "%s→%s %s", from, to, c)
			assert.InDelta(t, table.Bands(to)[c].Min, end[c].Min, 1e-12)
		}
	}
}

func TestInterpolateCToBSpecialRules(t *testing.T) {
	table := testTable(t)
	c, b := table.Bands(regime.RegimeC), table.Bands(regime.RegimeB)

	mid := table.Interpolate(regime.RegimeC, regime.RegimeB, 0.5)
	// gold linear
	assert.InDelta(t, c[Gold].Target+(b[Gold].Target-c[Gold].Target)*0.5, mid[Gold].Target, 1e-12)
	// medium debt and equity at half speed
	assert.InDelta(t, c[DebtMedium].Target+(b[DebtMedium].Target-c[DebtMedium].Target)*0.25, mid[DebtMedium].Target, 1e-12)
	assert.InDelta(t, c[Equity].Target+(b[Equity].Target-c[Equity].Target)*0.25, mid[Equity].Target, 1e-12)

	late := table.Interpolate(regime.RegimeC, regime.RegimeB, 0.9)
	// equity catches up: 0.4 + 0.1*3 = 0.7
	assert.InDelta(t, c[Equity].Target+(b[Equity].Target-c[Equity].Target)*0.7, late[Equity].Target, 1e-12)
	assert.InDelta(t, c[DebtMedium].Target+(b[DebtMedium].Target-c[DebtMedium].Target)*0.9, late[DebtMedium].Target, 1e-12)

	// the reverse direction is plain linear
	rev := table.Interpolate(regime.RegimeB, regime.RegimeC, 0.5)
	assert.InDelta(t, (b[Equity].Target+c[Equity].Target)/2, rev[Equity].Target, 1e-12)
}

func TestTransitionBands(t *testing.T) {
	table := testTable(t)

	bands, progress := table.TransitionBands(nil)
	assert.Nil(t, bands)
	assert.Equal(t, 0.0, progress)

	h := regime.History{{Dominant: regime.RegimeA}, {Dominant: regime.RegimeA}}
	bands, progress = table.TransitionBands(h)
	assert.Equal(t, 1.0, progress)
	assert.Equal(t, table.Bands(regime.RegimeA), bands)

	h = append(h, regime.Detection{Dominant: regime.RegimeD})
	for i := 0; i < 6; i++ {
		h = append(h, regime.Detection{Dominant: regime.RegimeD})
	}
	bands, progress = table.TransitionBands(h)
	assert.Equal(t, 0.5, progress)
	want := table.Interpolate(regime.RegimeA, regime.RegimeD, 0.5)
	assert.InDelta(t, want[Equity].Target, bands[Equity].Target, 1e-12)
}

func TestClassWeights(t *testing.T) {
	funds := []Fund{{Code: "A", AssetClass: Equity}, {Code: "B", AssetClass: Equity}, {Code: "G", Category: "gold"}}
	got := ClassWeights(funds, map[string]float64{"A": 0.3, "B": 0.2, "G": 0.5})
	assert.InDelta(t, 0.5, got[Equity], 1e-12)
	assert.InDelta(t, 0.5, got[Gold], 1e-12)
}
