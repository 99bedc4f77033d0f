package regime

import (
	"github.com/wonny/regimelab/backend/internal/macro"
)

// Detector runs pillar scoring, the probability model and the sticky
// REGIME_C state machine for one month at a time. It holds no state between
// calls: everything carried forward comes from the History passed in.
type Detector struct {
	params Params
	model  *Model
}

// NewDetector creates a detector
func NewDetector(p Params) *Detector {
	return &Detector{params: p, model: NewModel(p)}
}

// Params returns the detector's parameters
func (d *Detector) Params() Params {
	return d.params
}

// WithSmoothing returns a detector sharing the model with a different smoothing factor
func (d *Detector) WithSmoothing(sf float64) *Detector {
	p := d.params
	p.SmoothingFactor = sf
	return &Detector{params: p, model: d.model}
}

// Detect classifies one month given everything detected before it
func (d *Detector) Detect(ind Indicators, history History) Detection {
	pillars := ScorePillars(ind, d.params.Curves)
	raw := d.model.RawProbabilities(ind, pillars)

	var prevProbs map[ID]float64
	prev, hasPrev := history.Last()
	if hasPrev {
		prevProbs = prev.Probabilities
	}
	probs := Smooth(prevProbs, raw, d.params.SmoothingFactor)
	leader := Leader(probs)

	months := make([]Indicators, 0, len(history)+1)
	for _, h := range history {
		months = append(months, h.Indicators)
	}
	months = append(months, ind)
	progress := Discipline(months, d.params.Discipline)

	det := Detection{
		Date:             ind.Date,
		Probabilities:    probs,
		RawProbabilities: raw,
		NaturalLeader:    leader,
		Dominant:         leader,
		Indicators:       ind,
		Scores:           make(map[Pillar]float64, len(pillars)),
		Warnings:         make(map[Pillar]bool, len(pillars)),
		Discipline:       progress,
	}
	for _, ps := range pillars {
		det.Scores[ps.Pillar] = ps.Score
		det.Warnings[ps.Pillar] = ps.Warning
	}

	// entering C is free, leaving it needs every discipline condition met
	if hasPrev && prev.Dominant == RegimeC && leader != RegimeC && !progress.Complete() {
		det.Dominant = RegimeC
		det.BlockReason = progress.BlockReason()
	}

	det.IsSticky = det.Dominant != det.NaturalLeader
	det.Confidence = probs[det.Dominant]
	return det
}

// Replay detects every month in order. Month t only sees months before it.
func (d *Detector) Replay(months []Indicators) History {
	history := make(History, 0, len(months))
	for _, ind := range months {
		history = append(history, d.Detect(ind, history))
	}
	return history
}

// ReplayEnriched replays normalised macro records
func (d *Detector) ReplayEnriched(enriched []macro.Enriched) History {
	months := make([]Indicators, len(enriched))
	for i := range enriched {
		months[i] = FromEnriched(enriched[i])
	}
	return d.Replay(months)
}

// PillarScores scores the pillars of ind with the detector's curves
func (d *Detector) PillarScores(ind Indicators) []PillarScore {
	return ScorePillars(ind, d.params.Curves)
}
