package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// =============================================================================
// RiskEngine - 순수 계산기
// =============================================================================

// Engine 리스크 엔진 (순수 계산기)
// ⭐ SSOT: 수익률 시계열 조립은 backtest 레이어, 여기서는 계산만 담당
type Engine struct{}

// NewEngine 새 리스크 엔진 생성
func NewEngine() *Engine {
	return &Engine{}
}

var (
	ErrInsufficientData = errors.New("insufficient data for simulation")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// =============================================================================
// VaR/CVaR Calculation (Pure)
// =============================================================================

// VaR Historical VaR/CVaR 계산
// returns: 월별 수익률 (양수=이익, 음수=손실)
func (e *Engine) VaR(returns []float64, confidence float64) VaRResult {
	return CalculateVaR(returns, confidence)
}

// ParametricVaR 정규분포 가정 VaR 계산
func (e *Engine) ParametricVaR(mean, stdDev, confidence float64) VaRResult {
	return CalculateParametricVaR(mean, stdDev, confidence)
}

// =============================================================================
// Monte Carlo Simulation (Pure)
// =============================================================================

// MonteCarlo 월간 포트폴리오 수익률 Monte Carlo 시뮬레이션
func (e *Engine) MonteCarlo(ctx context.Context, monthly []float64, config MonteCarloConfig) (*MonteCarloResult, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	// Fail-closed: 최소 샘플 수 체크
	if len(monthly) < config.MinSamples {
		return nil, fmt.Errorf("%w: got %d, need %d",
			ErrInsufficientData, len(monthly), config.MinSamples)
	}

	return NewMonteCarloSimulator(config).SimulateReturns(ctx, monthly)
}

// =============================================================================
// Risk Check
// =============================================================================

// CheckLimits 리스크 한도 체크
// maxDrawdown: 백테스트 MDD (양수)
func (e *Engine) CheckLimits(monthly []float64, maxDrawdown float64, limits RiskLimits) *RiskCheckResult {
	result := &RiskCheckResult{
		Passed:      true,
		MaxDrawdown: maxDrawdown,
		Limits:      limits,
		Violations:  make([]string, 0),
	}

	varResult := CalculateVaR(monthly, 0.95)
	result.VaR95 = varResult.VaR
	result.CVaR95 = varResult.CVaR

	if limits.MaxVaR95 > 0 && varResult.VaR > limits.MaxVaR95 {
		result.Passed = false
		result.Violations = append(result.Violations,
			fmt.Sprintf("VaR95 %.4f exceeds limit %.4f", varResult.VaR, limits.MaxVaR95))
	}

	if limits.MaxCVaR95 > 0 && varResult.CVaR > limits.MaxCVaR95 {
		result.Passed = false
		result.Violations = append(result.Violations,
			fmt.Sprintf("CVaR95 %.4f exceeds limit %.4f", varResult.CVaR, limits.MaxCVaR95))
	}

	if limits.MaxDrawdown > 0 && maxDrawdown > limits.MaxDrawdown {
		result.Passed = false
		result.Violations = append(result.Violations,
			fmt.Sprintf("max drawdown %.4f exceeds limit %.4f", maxDrawdown, limits.MaxDrawdown))
	}

	return result
}

// =============================================================================
// Stress Test (순수 계산)
// =============================================================================

// DefaultScenarios 기본 스트레스 시나리오
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name: "equity_crash",
			Shocks: map[allocation.AssetClass]float64{
				allocation.Equity:     -0.30,
				allocation.Hybrid:     -0.15,
				allocation.DebtLong:   0.03,
				allocation.DebtMedium: 0.02,
				allocation.DebtShort:  0.01,
				allocation.Gold:       0.08,
			},
		},
		{
			Name: "rate_shock",
			Shocks: map[allocation.AssetClass]float64{
				allocation.Equity:     -0.10,
				allocation.Hybrid:     -0.07,
				allocation.DebtLong:   -0.12,
				allocation.DebtMedium: -0.06,
				allocation.DebtShort:  -0.01,
				allocation.Gold:       -0.05,
			},
		},
		{
			Name: "inflation_spike",
			Shocks: map[allocation.AssetClass]float64{
				allocation.Equity:     -0.12,
				allocation.Hybrid:     -0.08,
				allocation.DebtLong:   -0.08,
				allocation.DebtMedium: -0.04,
				allocation.DebtShort:  0.00,
				allocation.Gold:       0.15,
			},
		},
	}
}

// StressTest 레짐별 목표비중 포트폴리오에 시나리오 충격 적용
// 반환: 시나리오 순서 × 레짐 A→D 순서
func (e *Engine) StressTest(table *allocation.Table, scenarios []Scenario) []StressResult {
	results := make([]StressResult, 0, len(scenarios)*len(regime.All()))

	for _, scenario := range scenarios {
		for _, id := range regime.All() {
			results = append(results, StressResult{
				Scenario: scenario.Name,
				Regime:   id,
				Impact:   ApplyShocks(table.Targets(id), scenario.Shocks),
			})
		}
	}

	return results
}

// ApplyShocks 자산군 비중 × 충격 합 (충격이 없는 자산군은 0)
func ApplyShocks(weights map[allocation.AssetClass]float64, shocks map[allocation.AssetClass]float64) float64 {
	var impact float64
	for class, w := range weights {
		impact += w * shocks[class]
	}
	return impact
}

// =============================================================================
// Utility Functions
// =============================================================================

// ValidateConfig 설정 유효성 검사
func ValidateConfig(config MonteCarloConfig) error {
	if config.NumSimulations <= 0 {
		return fmt.Errorf("%w: NumSimulations must be > 0", ErrInvalidConfig)
	}
	if config.HoldingPeriod <= 0 {
		return fmt.Errorf("%w: HoldingPeriod must be > 0", ErrInvalidConfig)
	}
	if config.MinSamples <= 0 {
		return fmt.Errorf("%w: MinSamples must be > 0", ErrInvalidConfig)
	}
	if len(config.ConfidenceLevels) == 0 {
		return fmt.Errorf("%w: ConfidenceLevels cannot be empty", ErrInvalidConfig)
	}
	for _, cl := range config.ConfidenceLevels {
		if cl <= 0 || cl >= 1 {
			return fmt.Errorf("%w: ConfidenceLevel must be between 0 and 1", ErrInvalidConfig)
		}
	}
	switch config.Method {
	case MethodHistoricalBootstrap, MethodParametricNormal:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, config.Method)
	}
	return nil
}
