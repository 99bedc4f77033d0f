package allocation

import (
	"math"

	"github.com/wonny/regimelab/backend/internal/regime"
)

// TransitionMonths assumed length of a gradual band transition
const TransitionMonths = 12

// TransitionProgress min(1, monthsSinceChange/12)
func TransitionProgress(monthsSinceChange int) float64 {
	if monthsSinceChange <= 0 {
		return 0
	}
	return math.Min(1, float64(monthsSinceChange)/TransitionMonths)
}

// Interpolate blends the bands of from into those of to.
// A class present on one side only is treated as {0,0,0} on the other.
// Leaving REGIME_C for REGIME_B delays medium-duration debt and equity:
// debt moves at half speed until 75% progress, equity at half speed until
// 80% and then catches up. Presentation only; detection always reports the
// discrete bands of the dominant regime.
func (t *Table) Interpolate(from, to regime.ID, progress float64) Bands {
	progress = math.Max(0, math.Min(1, progress))
	fromBands, toBands := t.Bands(from), t.Bands(to)

	classes := make(map[AssetClass]bool, len(fromBands)+len(toBands))
	for c := range fromBands {
		classes[c] = true
	}
	for c := range toBands {
		classes[c] = true
	}

	out := make(Bands, len(classes))
	for c := range classes {
		a, b := fromBands[c], toBands[c]
		p := progress
		if from == regime.RegimeC && to == regime.RegimeB {
			p = cToBProgress(c, progress)
		}
		out[c] = Band{
			Min:    a.Min + (b.Min-a.Min)*p,
			Max:    a.Max + (b.Max-a.Max)*p,
			Target: a.Target + (b.Target-a.Target)*p,
		}
	}
	return out
}

func cToBProgress(c AssetClass, p float64) float64 {
	switch c {
	case DebtMedium:
		if p < 0.75 {
			return p * 0.5
		}
	case Equity:
		if p < 0.8 {
			return p * 0.5
		}
		return math.Min(1, 0.4+(p-0.8)*3)
	}
	return p
}

// TransitionBands presentation bands for the latest month of h: interpolated
// from the previous regime while a change is younger than TransitionMonths,
// otherwise the dominant regime's own bands.
func (t *Table) TransitionBands(h regime.History) (Bands, float64) {
	last, ok := h.Last()
	if !ok {
		return nil, 0
	}
	since := h.MonthsSinceChange()
	start := len(h) - 1 - since
	if start == 0 {
		return t.Bands(last.Dominant), 1
	}

	progress := TransitionProgress(since)
	if progress >= 1 {
		return t.Bands(last.Dominant), 1
	}
	return t.Interpolate(h[start-1].Dominant, last.Dominant, progress), progress
}
