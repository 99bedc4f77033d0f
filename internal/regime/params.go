package regime

// Curve linear clamp from Lo (score 0) to Hi (score 1).
// Hi < Lo means lower values are more stressed.
type Curve struct {
	Lo        float64 `json:"lo" yaml:"lo"`
	Hi        float64 `json:"hi" yaml:"hi"`
	Threshold float64 `json:"threshold" yaml:"threshold"` // warning boundary
	Neutral   float64 `json:"neutral" yaml:"neutral"`     // score when the input is absent
}

// Score maps v onto [0,1]
func (c Curve) Score(v float64) float64 {
	if c.Hi == c.Lo {
		return c.Neutral
	}
	s := (v - c.Lo) / (c.Hi - c.Lo)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Warn reports whether v is past the threshold in the stressed direction
func (c Curve) Warn(v float64) bool {
	if c.Hi < c.Lo {
		return v < c.Threshold
	}
	return v > c.Threshold
}

// Term one weighted evidence term; Invert uses 1-score
type Term struct {
	Feature Feature `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
	Invert  bool    `json:"invert,omitempty" yaml:"invert,omitempty"`
}

// DisciplineRules exit conditions for REGIME_C.
// Each condition must hold in every one of its trailing months.
type DisciplineRules struct {
	RealRateAbove     float64 `json:"realRateAbove" yaml:"real_rate_above"`
	RealRateMonths    int     `json:"realRateMonths" yaml:"real_rate_months"`
	CorrelationBelow  float64 `json:"correlationBelow" yaml:"correlation_below"`
	CorrelationMonths int     `json:"correlationMonths" yaml:"correlation_months"`
	GoldBuyingBelow   float64 `json:"goldBuyingBelow" yaml:"gold_buying_below"`
	GoldBuyingMonths  int     `json:"goldBuyingMonths" yaml:"gold_buying_months"`
}

// Params every tunable of the detection pipeline
type Params struct {
	Curves          map[Feature]Curve `json:"curves"`
	Evidence        map[ID][]Term     `json:"evidence"`
	SmoothingFactor float64           `json:"smoothingFactor"`
	Discipline      DisciplineRules   `json:"discipline"`
}

// DefaultParams calibrated defaults.
// ⭐ SSOT: internal/regimeconfig/default.yaml 와 동일해야 함
func DefaultParams() Params {
	return Params{
		Curves: map[Feature]Curve{
			Feature(PillarRealRate):        {Lo: 3.0, Hi: -1.0, Threshold: 1.0, Neutral: 0.5},
			Feature(PillarDebtStress):      {Lo: 1.0, Hi: 5.0, Threshold: 3.0, Neutral: 0.5},
			Feature(PillarBondEquityCorr):  {Lo: -0.5, Hi: 0.5, Threshold: 0, Neutral: 0.5},
			Feature(PillarCBGoldBuying):    {Lo: -1.0, Hi: 1.0, Threshold: 0, Neutral: 0.5},
			Feature(PillarInflationVol):    {Lo: 0.5, Hi: 3.5, Threshold: 2.0, Neutral: 0.5},
			Feature(PillarVolatilityRatio): {Lo: 0.5, Hi: 1.5, Threshold: 1.0, Neutral: 0.5},
			FeatureGrowthNegative:          {Lo: 2.0, Hi: -2.0, Threshold: 0, Neutral: 0.5},
			FeatureInflationFalling:        {Lo: 1.0, Hi: -1.0, Threshold: 0, Neutral: 0.5},
			FeatureGrowthRising:            {Lo: -1.0, Hi: 1.0, Threshold: 0, Neutral: 0.5},
			FeatureMarketStress:            {Lo: 0, Hi: 3.0, Threshold: 1.5, Neutral: 0},
		},
		Evidence: map[ID][]Term{
			RegimeA: {
				{Feature: Feature(PillarRealRate), Weight: 0.30, Invert: true},
				{Feature: Feature(PillarBondEquityCorr), Weight: 0.20, Invert: true},
				{Feature: Feature(PillarVolatilityRatio), Weight: 0.25, Invert: true},
				{Feature: Feature(PillarDebtStress), Weight: 0.10, Invert: true},
				{Feature: FeatureGrowthNegative, Weight: 0.15, Invert: true},
			},
			RegimeB: {
				{Feature: FeatureInflationFalling, Weight: 0.30},
				{Feature: FeatureGrowthRising, Weight: 0.20},
				{Feature: Feature(PillarBondEquityCorr), Weight: 0.20, Invert: true},
				{Feature: FeatureGrowthNegative, Weight: 0.15, Invert: true},
				{Feature: Feature(PillarInflationVol), Weight: 0.15, Invert: true},
			},
			RegimeC: {
				{Feature: Feature(PillarRealRate), Weight: 0.15},
				{Feature: Feature(PillarDebtStress), Weight: 0.20},
				{Feature: Feature(PillarBondEquityCorr), Weight: 0.10},
				{Feature: Feature(PillarCBGoldBuying), Weight: 0.15},
				{Feature: Feature(PillarInflationVol), Weight: 0.10},
				{Feature: Feature(PillarVolatilityRatio), Weight: 0.30},
			},
			RegimeD: {
				{Feature: FeatureGrowthNegative, Weight: 0.35},
				{Feature: FeatureMarketStress, Weight: 0.25},
				{Feature: Feature(PillarVolatilityRatio), Weight: 0.20},
				{Feature: Feature(PillarBondEquityCorr), Weight: 0.10},
				{Feature: Feature(PillarDebtStress), Weight: 0.10},
			},
		},
		SmoothingFactor: 0.3,
		Discipline: DisciplineRules{
			RealRateAbove:     1.0,
			RealRateMonths:    9,
			CorrelationBelow:  -0.2,
			CorrelationMonths: 6,
			GoldBuyingBelow:   0,
			GoldBuyingMonths:  3,
		},
	}
}
