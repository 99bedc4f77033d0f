package regime

// Model weighted-evidence regime probability model
// ⭐ SSOT: 레짐 확률 계산은 여기서만
type Model struct {
	curves   map[Feature]Curve
	evidence map[ID][]Term
}

// NewModel creates a model from the curves and evidence weights in p
func NewModel(p Params) *Model {
	return &Model{curves: p.Curves, evidence: p.Evidence}
}

// FeatureScores scores every evidence feature. Pillar scores are reused as-is.
func (m *Model) FeatureScores(ind Indicators, pillars []PillarScore) map[Feature]float64 {
	out := make(map[Feature]float64, 10)
	for _, ps := range pillars {
		out[Feature(ps.Pillar)] = ps.Score
	}
	for _, f := range Features() {
		if _, ok := out[f]; ok {
			continue
		}
		c := m.curves[f]
		if v := featureInput(ind, f); v != nil {
			out[f] = c.Score(*v)
		} else {
			out[f] = c.Neutral
		}
	}
	return out
}

// Evidence raw (unnormalised) evidence per regime
func (m *Model) Evidence(features map[Feature]float64) map[ID]float64 {
	out := make(map[ID]float64, 4)
	for _, id := range All() {
		sum := 0.0
		for _, t := range m.evidence[id] {
			f := features[t.Feature]
			if t.Invert {
				f = 1 - f
			}
			sum += t.Weight * f
		}
		out[id] = sum
	}
	return out
}

// RawProbabilities evidence normalised to a distribution (ratio to sum)
func (m *Model) RawProbabilities(ind Indicators, pillars []PillarScore) map[ID]float64 {
	return Normalize(m.Evidence(m.FeatureScores(ind, pillars)))
}

// Normalize clamps negatives to 0 and divides by the total.
// A zero total yields the uniform distribution.
func Normalize(weights map[ID]float64) map[ID]float64 {
	out := make(map[ID]float64, 4)
	total := 0.0
	for _, id := range All() {
		w := weights[id]
		if w < 0 {
			w = 0
		}
		out[id] = w
		total += w
	}
	for _, id := range All() {
		if total == 0 {
			out[id] = 0.25
		} else {
			out[id] /= total
		}
	}
	return out
}

// Smooth blends sf*prev + (1-sf)*raw and renormalises.
//
// This is an exponential moving average over months, not a Bayes update; the
// "Bayesian smoothing" name is kept for the API only. With no prior month the
// raw distribution is returned unchanged. sf is clamped to [0,1].
func Smooth(prev, raw map[ID]float64, sf float64) map[ID]float64 {
	if prev == nil {
		out := make(map[ID]float64, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out
	}
	if sf < 0 {
		sf = 0
	}
	if sf > 1 {
		sf = 1
	}

	blended := make(map[ID]float64, 4)
	for _, id := range All() {
		blended[id] = sf*prev[id] + (1-sf)*raw[id]
	}
	return Normalize(blended)
}

// Leader arg-max of probs; ties go to the earlier regime in A→D order
func Leader(probs map[ID]float64) ID {
	best := RegimeA
	for _, id := range All()[1:] {
		if probs[id] > probs[best] {
			best = id
		}
	}
	return best
}
