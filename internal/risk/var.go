package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// =============================================================================
// VaR (Value at Risk) Calculation
// =============================================================================

// CalculateVaR 과거 수익률 기반 VaR 계산 (Historical Simulation)
// returns: 월별 수익률 배열 (양수=이익, 음수=손실)
// confidence: 신뢰수준 (예: 0.95, 0.99)
// 반환값: VaR는 손실을 양수로 표현 (예: 0.05 = 5% 손실 가능)
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	if len(returns) == 0 {
		return VaRResult{Confidence: confidence}
	}

	// 수익률 정렬 (오름차순: 손실이 앞에)
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1.0 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		VaR:        lossOf(sorted[idx]),
		CVaR:       CalculateCVaR(sorted, idx),
	}
}

// CalculateCVaR Conditional VaR (Expected Shortfall) 계산
// sorted: 오름차순 정렬된 수익률
// varIdx: VaR 인덱스 (이 인덱스 이하의 수익률이 tail)
func CalculateCVaR(sorted []float64, varIdx int) float64 {
	if len(sorted) == 0 || varIdx < 0 {
		return 0
	}
	if varIdx >= len(sorted) {
		varIdx = len(sorted) - 1
	}
	return lossOf(stat.Mean(sorted[:varIdx+1], nil))
}

// CalculateParametricVaR 정규분포 가정 VaR 계산
func CalculateParametricVaR(mean, stdDev, confidence float64) VaRResult {
	z := distuv.UnitNormal.Quantile(confidence)

	varValue := math.Max(0, z*stdDev-mean)
	// CVaR = -mean + stdDev * φ(z) / (1-confidence)
	cvar := math.Max(0, stdDev*distuv.UnitNormal.Prob(z)/(1-confidence)-mean)

	return VaRResult{
		Confidence: confidence,
		VaR:        varValue,
		CVaR:       cvar,
	}
}

func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}

// =============================================================================
// 통계 유틸리티
// =============================================================================

// CalculateMean 평균 (빈 입력은 0)
func CalculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// CalculateVolatility 모표준편차 (n으로 나눔)
func CalculateVolatility(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(values, nil)
	if math.IsNaN(std) {
		return 0
	}
	return std
}

// CalculatePercentiles 백분위수 (선형 보간)
func CalculatePercentiles(values []float64, ps []int) map[int]float64 {
	out := make(map[int]float64, len(ps))
	if len(values) == 0 {
		return out
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for _, p := range ps {
		out[p] = stat.Quantile(float64(p)/100, stat.LinInterp, sorted, nil)
	}
	return out
}
