package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// MonteCarloSimulator 월간 포트폴리오 수익률 기반 Monte Carlo 시뮬레이터
type MonteCarloSimulator struct {
	config MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator 새 시뮬레이터 생성 (Seed=0이면 시간 기반)
func NewMonteCarloSimulator(config MonteCarloConfig) *MonteCarloSimulator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &MonteCarloSimulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SimulateReturns 보유기간(월) 누적 수익률 분포를 시뮬레이션
// monthly: 백테스트에서 얻은 월간 포트폴리오 수익률
func (mc *MonteCarloSimulator) SimulateReturns(ctx context.Context, monthly []float64) (*MonteCarloResult, error) {
	if len(monthly) == 0 {
		return nil, fmt.Errorf("%w: empty portfolio returns", ErrInsufficientData)
	}

	var (
		paths []float64
		err   error
	)
	switch mc.config.Method {
	case MethodParametricNormal:
		paths, err = mc.parametricSimulation(ctx, monthly)
	default:
		paths, err = mc.bootstrapSimulation(ctx, monthly)
	}
	if err != nil {
		return nil, err
	}

	result := mc.calculateResult(paths)
	result.InputSampleCount = len(monthly)
	return result, nil
}

// bootstrapSimulation 과거 월수익률을 복원추출해 보유기간 동안 복리 누적
func (mc *MonteCarloSimulator) bootstrapSimulation(ctx context.Context, monthly []float64) ([]float64, error) {
	results := make([]float64, mc.config.NumSimulations)

	for i := range results {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cum := 1.0
		for m := 0; m < mc.config.HoldingPeriod; m++ {
			cum *= 1 + monthly[mc.rng.Intn(len(monthly))]
		}
		results[i] = cum - 1
	}

	return results, nil
}

// parametricSimulation 정규분포 가정 (평균·변동성은 보유기간으로 스케일)
func (mc *MonteCarloSimulator) parametricSimulation(ctx context.Context, monthly []float64) ([]float64, error) {
	results := make([]float64, mc.config.NumSimulations)

	mean := CalculateMean(monthly) * float64(mc.config.HoldingPeriod)
	std := CalculateVolatility(monthly) * math.Sqrt(float64(mc.config.HoldingPeriod))

	for i := range results {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		results[i] = mean + std*mc.rng.NormFloat64()
	}

	return results, nil
}

// calculateResult 시뮬레이션 결과 통계 계산
func (mc *MonteCarloSimulator) calculateResult(paths []float64) *MonteCarloResult {
	var95 := CalculateVaR(paths, 0.95)
	var99 := CalculateVaR(paths, 0.99)

	losses := 0
	for _, r := range paths {
		if r < 0 {
			losses++
		}
	}

	return &MonteCarloResult{
		RunID:           uuid.New().String(),
		RunDate:         time.Now(),
		Config:          mc.config,
		MeanReturn:      CalculateMean(paths),
		StdDev:          CalculateVolatility(paths),
		VaR95:           var95.VaR,
		VaR99:           var99.VaR,
		CVaR95:          var95.CVaR,
		CVaR99:          var99.CVaR,
		ProbabilityLoss: float64(losses) / float64(len(paths)),
		Percentiles:     CalculatePercentiles(paths, []int{1, 5, 10, 25, 50, 75, 90, 95, 99}),
	}
}
