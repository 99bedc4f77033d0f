package regime

// ScorePillars scores each pillar independently against its curve.
// An absent input gets the curve's neutral score and no warning.
func ScorePillars(ind Indicators, curves map[Feature]Curve) []PillarScore {
	out := make([]PillarScore, 0, 6)
	for _, p := range Pillars() {
		c := curves[Feature(p)]
		ps := PillarScore{Pillar: p, Threshold: c.Threshold, Score: c.Neutral}
		if v := ind.Pillar(p); v != nil {
			val := *v
			ps.Value = &val
			ps.Score = c.Score(val)
			ps.Warning = c.Warn(val)
		}
		out = append(out, ps)
	}
	return out
}

// featureInput raw input of a non-pillar evidence feature
func featureInput(ind Indicators, f Feature) *float64 {
	switch f {
	case FeatureGrowthNegative:
		return ind.GDPGrowth
	case FeatureInflationFalling:
		return ind.InflationMomentum
	case FeatureGrowthRising:
		return ind.GrowthMomentum
	case FeatureMarketStress:
		// worst of credit spread and equity volatility z-score
		switch {
		case ind.CreditSpread != nil && ind.EquityVolatility != nil:
			v := *ind.CreditSpread
			if *ind.EquityVolatility > v {
				v = *ind.EquityVolatility
			}
			return &v
		case ind.CreditSpread != nil:
			return ind.CreditSpread
		default:
			return ind.EquityVolatility
		}
	}
	return ind.Pillar(Pillar(f))
}
