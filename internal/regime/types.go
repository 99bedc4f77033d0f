package regime

import (
	"fmt"

	"github.com/wonny/regimelab/backend/internal/macro"
)

// ID regime identifier
type ID string

const (
	RegimeA ID = "REGIME_A" // monetary credibility
	RegimeB ID = "REGIME_B" // disinflationary growth
	RegimeC ID = "REGIME_C" // fiscal dominance / financial repression
	RegimeD ID = "REGIME_D" // crisis / trust shock
)

// All returns every regime in tie-break order
func All() []ID {
	return []ID{RegimeA, RegimeB, RegimeC, RegimeD}
}

func (id ID) String() string {
	return string(id)
}

// Valid reports whether id is one of the four regimes
func (id ID) Valid() bool {
	switch id {
	case RegimeA, RegimeB, RegimeC, RegimeD:
		return true
	}
	return false
}

// ParseID accepts "REGIME_C", "C" or "c"
func ParseID(s string) (ID, error) {
	switch s {
	case "A", "a":
		return RegimeA, nil
	case "B", "b":
		return RegimeB, nil
	case "C", "c":
		return RegimeC, nil
	case "D", "d":
		return RegimeD, nil
	}
	if id := ID(s); id.Valid() {
		return id, nil
	}
	return "", fmt.Errorf("unknown regime %q", s)
}

// Pillar one of the six scored macro stress signals
type Pillar string

const (
	PillarRealRate        Pillar = "realRate"
	PillarDebtStress      Pillar = "debtStress"
	PillarBondEquityCorr  Pillar = "bondEquityCorr"
	PillarCBGoldBuying    Pillar = "cbGoldBuying"
	PillarInflationVol    Pillar = "inflationVol"
	PillarVolatilityRatio Pillar = "volatilityRatio"
)

// Pillars returns the six pillars in display order
func Pillars() []Pillar {
	return []Pillar{
		PillarRealRate,
		PillarDebtStress,
		PillarBondEquityCorr,
		PillarCBGoldBuying,
		PillarInflationVol,
		PillarVolatilityRatio,
	}
}

// Feature evidence input of the probability model: the six pillars plus
// growth, momentum and market-stress signals
type Feature string

const (
	FeatureGrowthNegative   Feature = "growthNegative"
	FeatureInflationFalling Feature = "inflationFalling"
	FeatureGrowthRising     Feature = "growthRising"
	FeatureMarketStress     Feature = "marketStress"
)

// Features returns every evidence feature, pillars first
func Features() []Feature {
	out := make([]Feature, 0, 10)
	for _, p := range Pillars() {
		out = append(out, Feature(p))
	}
	return append(out, FeatureGrowthNegative, FeatureInflationFalling, FeatureGrowthRising, FeatureMarketStress)
}

// Indicators one month of detector input. nil means the input is unavailable.
type Indicators struct {
	Date string `json:"date"`

	RealRate        *float64 `json:"realRate,omitempty"`
	DebtStress      *float64 `json:"debtStress,omitempty"`
	BondEquityCorr  *float64 `json:"bondEquityCorr,omitempty"`
	CBGoldBuying    *float64 `json:"cbGoldBuying,omitempty"`
	InflationVol    *float64 `json:"inflationVol,omitempty"`
	VolatilityRatio *float64 `json:"volatilityRatio,omitempty"`

	GDPGrowth         *float64 `json:"gdpGrowth,omitempty"`
	InflationMomentum *float64 `json:"inflationMomentum,omitempty"`
	GrowthMomentum    *float64 `json:"growthMomentum,omitempty"`
	CreditSpread      *float64 `json:"creditSpread,omitempty"`
	EquityVolatility  *float64 `json:"equityVolatility,omitempty"` // z-score
}

// Pillar returns the raw value feeding pillar p
func (ind Indicators) Pillar(p Pillar) *float64 {
	switch p {
	case PillarRealRate:
		return ind.RealRate
	case PillarDebtStress:
		return ind.DebtStress
	case PillarBondEquityCorr:
		return ind.BondEquityCorr
	case PillarCBGoldBuying:
		return ind.CBGoldBuying
	case PillarInflationVol:
		return ind.InflationVol
	case PillarVolatilityRatio:
		return ind.VolatilityRatio
	}
	return nil
}

// FromEnriched maps a normalised macro month onto detector input.
// Values that only exist as a last-resort default are left unset so they
// score neutral instead of pretending to be observations.
func FromEnriched(e macro.Enriched) Indicators {
	d := e.Derived
	ind := Indicators{
		Date:              e.Date,
		DebtStress:        macro.Float(d.DebtStress),
		InflationMomentum: macro.Float(d.InflationMomentum),
		GrowthMomentum:    macro.Float(d.GrowthMomentum),
		GDPGrowth:         d.GDPGrowth,
		CreditSpread:      d.CreditSpread,
		EquityVolatility:  d.EquityVolZ,
	}
	if d.Sources["realRate"] != macro.SourceDefault {
		ind.RealRate = macro.Float(d.RealRate)
	}
	if d.Sources["cbGoldBuying"] != macro.SourceDefault {
		ind.CBGoldBuying = macro.Float(d.CBGoldBuying)
	}
	// warm-up months (window not yet full) stay neutral
	if d.Sources["inflationVol"] != macro.SourceDefault {
		ind.InflationVol = macro.Float(d.InflationVol)
	}
	if d.Sources["volatilityRatio"] != macro.SourceDefault {
		ind.VolatilityRatio = macro.Float(d.VolatilityRatio)
	}
	if d.Sources["bondEquityCorr"] != macro.SourceDefault {
		ind.BondEquityCorr = macro.Float(d.BondEquityCorr)
	}
	return ind
}

// PillarScore one pillar's raw value, [0,1] stress score and warning flag
type PillarScore struct {
	Pillar    Pillar   `json:"pillar"`
	Value     *float64 `json:"value,omitempty"`
	Score     float64  `json:"score"`
	Warning   bool     `json:"warning"`
	Threshold float64  `json:"threshold"`
}

// Detection output of one monthly detection step. Never mutated after Detect returns.
type Detection struct {
	Date             string             `json:"date"`
	Probabilities    map[ID]float64     `json:"probabilities"`
	RawProbabilities map[ID]float64     `json:"rawProbabilities"`
	Dominant         ID                 `json:"dominant"`
	NaturalLeader    ID                 `json:"naturalLeader"`
	Confidence       float64            `json:"confidence"`
	Indicators       Indicators         `json:"indicators"`
	Scores           map[Pillar]float64 `json:"scores"`
	Warnings         map[Pillar]bool    `json:"warnings"`
	IsSticky         bool               `json:"isSticky"`
	BlockReason      string             `json:"blockReason,omitempty"`
	Discipline       DisciplineProgress `json:"discipline"`
}

// History caller-owned, append-only sequence of detections (oldest first)
type History []Detection

// Last returns the most recent detection
func (h History) Last() (Detection, bool) {
	if len(h) == 0 {
		return Detection{}, false
	}
	return h[len(h)-1], true
}

// MonthsSinceChange months the current dominant regime has been held,
// counting the latest month as 0
func (h History) MonthsSinceChange() int {
	if len(h) == 0 {
		return 0
	}
	cur := h[len(h)-1].Dominant
	n := 0
	for i := len(h) - 2; i >= 0 && h[i].Dominant == cur; i-- {
		n++
	}
	return n
}

// Distribution share of months spent in each regime
func (h History) Distribution() map[ID]float64 {
	out := make(map[ID]float64, 4)
	for _, id := range All() {
		out[id] = 0
	}
	if len(h) == 0 {
		return out
	}
	for _, d := range h {
		out[d.Dominant]++
	}
	for id := range out {
		out[id] /= float64(len(h))
	}
	return out
}
