package audit

import (
	"math"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// RegimeAttribution 레짐별 수익 기여도
type RegimeAttribution struct {
	Regime regime.ID `json:"regime"`
	Months int       `json:"months"`

	// LogContribution Σ ln(1+r) over the regime's months; the regimes sum to ln(end/start)
	LogContribution float64 `json:"log_contribution"`
	// Share of the run's total log return, 0 when the run is flat
	Share float64 `json:"share"`

	AvgExposure       map[allocation.AssetClass]float64 `json:"avg_exposure"`
	AssetContribution map[allocation.AssetClass]float64 `json:"asset_contribution"` // Σ weight·return per class
}

// minLogBase keeps ln(1+r) finite for a -100% month
const minLogBase = 1e-9

// AttributeByRegime splits the run's return across the regimes that held it.
// Fund codes missing from funds are attributed to EQUITY, the same default ClassifyCategory uses.
// Regimes with no months are omitted; order is A→D.
func AttributeByRegime(res *backtest.Result, funds []allocation.Fund) []RegimeAttribution {
	classOf := make(map[string]allocation.AssetClass, len(funds))
	for _, f := range funds {
		classOf[f.Code] = f.Class()
	}
	lookup := func(code string) allocation.AssetClass {
		if c, ok := classOf[code]; ok {
			return c
		}
		return allocation.Equity
	}

	byRegime := make(map[regime.ID]*RegimeAttribution, 4)
	total := 0.0
	for _, m := range res.Records {
		a, ok := byRegime[m.Regime]
		if !ok {
			a = &RegimeAttribution{
				Regime:            m.Regime,
				AvgExposure:       make(map[allocation.AssetClass]float64),
				AssetContribution: make(map[allocation.AssetClass]float64),
			}
			byRegime[m.Regime] = a
		}

		lr := math.Log(math.Max(1+m.PortfolioReturn, minLogBase))
		a.Months++
		a.LogContribution += lr
		total += lr

		for code, w := range m.Weights {
			class := lookup(code)
			a.AvgExposure[class] += w
			a.AssetContribution[class] += w * m.AssetReturns[code]
		}
	}

	out := make([]RegimeAttribution, 0, len(byRegime))
	for _, id := range regime.All() {
		a, ok := byRegime[id]
		if !ok {
			continue
		}
		for class := range a.AvgExposure {
			a.AvgExposure[class] /= float64(a.Months)
		}
		if math.Abs(total) > 1e-12 {
			a.Share = a.LogContribution / total
		}
		out = append(out, *a)
	}
	return out
}
