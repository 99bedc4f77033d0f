package backtest

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/wonny/regimelab/backend/internal/allocation"
)

// Simulator compounds a fund-weighted portfolio one month at a time
// ⭐ SSOT: 포트폴리오 가치/고점/낙폭 갱신은 여기서만
type Simulator struct {
	capital float64
	value   float64
	peak    float64
	weights map[string]float64

	months     int
	rebalances int
	wins       int
}

// Stats holds simulation statistics
type Stats struct {
	Months     int
	Rebalances int
	Wins       int
}

// NewSimulator creates a simulator starting at capital
func NewSimulator(capital float64) *Simulator {
	s := &Simulator{}
	s.Initialize(capital)
	return s
}

// Initialize resets the simulator with initial capital
func (s *Simulator) Initialize(capital float64) {
	s.capital = capital
	s.value = capital
	s.peak = capital
	s.weights = make(map[string]float64)
	s.months = 0
	s.rebalances = 0
	s.wins = 0
}

// Rebalance replaces the active fund weights
func (s *Simulator) Rebalance(weights map[string]float64) {
	s.weights = make(map[string]float64, len(weights))
	for code, w := range weights {
		s.weights[code] = w
	}
	s.rebalances++
}

// Weights returns a copy of the active weights
func (s *Simulator) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for code, w := range s.weights {
		out[code] = w
	}
	return out
}

// Step applies one month of fund returns. Funds without a return contribute 0.
// Weights do not drift: the same weights apply until the next Rebalance.
func (s *Simulator) Step(returns map[string]float64) float64 {
	codes := make([]string, 0, len(s.weights))
	for code := range s.weights {
		codes = append(codes, code)
	}
	sort.Strings(codes) // fixed summation order

	w := make([]float64, len(codes))
	r := make([]float64, len(codes))
	for i, code := range codes {
		w[i] = s.weights[code]
		r[i] = returns[code]
	}
	portfolioReturn := floats.Dot(w, r)

	s.value *= 1 + portfolioReturn
	if s.value > s.peak {
		s.peak = s.value
	}
	s.months++
	if portfolioReturn > 0 {
		s.wins++
	}
	return portfolioReturn
}

// Value current portfolio value
func (s *Simulator) Value() float64 { return s.value }

// Peak highest value so far (including the starting capital)
func (s *Simulator) Peak() float64 { return s.peak }

// Drawdown (peak-value)/peak, 0 at a new high
func (s *Simulator) Drawdown() float64 {
	if s.peak <= 0 {
		return 0
	}
	return (s.peak - s.value) / s.peak
}

// GetStats returns simulation statistics
func (s *Simulator) GetStats() Stats {
	return Stats{
		Months:     s.months,
		Rebalances: s.rebalances,
		Wins:       s.wins,
	}
}

// FundWeights splits each asset-class target equally across the funds of
// that class. Classes without a fund are skipped and the rest renormalised
// to sum to 1.
func FundWeights(funds []allocation.Fund, targets map[allocation.AssetClass]float64) map[string]float64 {
	byClass := make(map[allocation.AssetClass][]string)
	for _, f := range funds {
		c := f.Class()
		byClass[c] = append(byClass[c], f.Code)
	}

	weights := make(map[string]float64, len(funds))
	total := 0.0
	for _, class := range allocation.AssetClasses() {
		codes := byClass[class]
		target := targets[class]
		if len(codes) == 0 || target <= 0 {
			continue
		}
		per := target / float64(len(codes))
		for _, code := range codes {
			weights[code] += per
			total += per
		}
	}

	if total > 0 {
		for code := range weights {
			weights[code] /= total
		}
	}
	return weights
}
