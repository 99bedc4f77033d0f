package risk

import (
	"time"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// =============================================================================
// VaR/CVaR Types
// =============================================================================

// VaRResult VaR 계산 결과
// ⭐ SSOT: VaR/CVaR는 손실을 양수로 표현
// - VaR=0.05 → 95% 신뢰수준에서 월 최대 5% 손실 가능
// - CVaR=0.07 → 5% tail에서 평균 7% 손실 예상
type VaRResult struct {
	Confidence float64 `json:"confidence"` // 신뢰수준 (예: 0.95, 0.99)
	VaR        float64 `json:"var"`        // Value at Risk (손실, 양수)
	CVaR       float64 `json:"cvar"`       // Conditional VaR (Expected Shortfall, 양수)
}

// =============================================================================
// Monte Carlo Types
// =============================================================================

// MonteCarloMethod 시뮬레이션 방법
type MonteCarloMethod string

const (
	MethodHistoricalBootstrap MonteCarloMethod = "historical_bootstrap" // 과거 월수익률 Bootstrap
	MethodParametricNormal    MonteCarloMethod = "parametric_normal"    // 정규분포 가정
)

// MonteCarloConfig Monte Carlo 시뮬레이션 설정
// ⭐ SSOT: 재현성을 위해 모든 설정을 명시적으로 기록
type MonteCarloConfig struct {
	NumSimulations   int              `json:"num_simulations"`   // 시뮬레이션 횟수 (기본: 10000)
	HoldingPeriod    int              `json:"holding_period"`    // 보유 기간 (월, 기본: 12)
	ConfidenceLevels []float64        `json:"confidence_levels"` // 신뢰수준 [0.95, 0.99]
	Method           MonteCarloMethod `json:"method"`            // bootstrap/normal
	Seed             int64            `json:"seed"`              // 재현성용 시드 (0=랜덤)
	MinSamples       int              `json:"min_samples"`       // 최소 샘플 수 (fail-closed, 기본: 24)
}

// DefaultMonteCarloConfig 기본 Monte Carlo 설정
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		NumSimulations:   10000,
		HoldingPeriod:    12,
		ConfidenceLevels: []float64{0.95, 0.99},
		Method:           MethodHistoricalBootstrap,
		Seed:             0,  // 랜덤
		MinSamples:       24, // fail-closed: 2년 미만이면 실패
	}
}

// MonteCarloResult Monte Carlo 시뮬레이션 결과
type MonteCarloResult struct {
	RunID            string           `json:"run_id"`   // 실행 고유 ID
	RunDate          time.Time        `json:"run_date"` // 실행 날짜
	Config           MonteCarloConfig `json:"config"`   // 재현성용 설정 기록
	InputSampleCount int              `json:"input_sample_count"`
	MeanReturn       float64          `json:"mean_return"` // 보유기간 평균 수익률
	StdDev           float64          `json:"std_dev"`
	VaR95            float64          `json:"var_95"`  // 95% VaR (손실, 양수)
	VaR99            float64          `json:"var_99"`  // 99% VaR (손실, 양수)
	CVaR95           float64          `json:"cvar_95"` // 95% CVaR (손실, 양수)
	CVaR99           float64          `json:"cvar_99"` // 99% CVaR (손실, 양수)
	ProbabilityLoss  float64          `json:"probability_loss"`
	Percentiles      map[int]float64  `json:"percentiles"` // 1, 5, 10, 25, 50, 75, 90, 95, 99
}

// =============================================================================
// Risk Check Types
// =============================================================================

// RiskLimits 리스크 한도 설정 (월간 기준)
type RiskLimits struct {
	MaxVaR95    float64 `json:"max_var_95"`   // 최대 95% 월간 VaR
	MaxCVaR95   float64 `json:"max_cvar_95"`  // 최대 95% 월간 CVaR
	MaxDrawdown float64 `json:"max_drawdown"` // 최대 MDD
}

// DefaultRiskLimits 기본 리스크 한도
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxVaR95:    0.06,
		MaxCVaR95:   0.09,
		MaxDrawdown: 0.25,
	}
}

// RiskCheckResult 리스크 체크 결과
type RiskCheckResult struct {
	Passed      bool       `json:"passed"`
	VaR95       float64    `json:"var_95"`
	CVaR95      float64    `json:"cvar_95"`
	MaxDrawdown float64    `json:"max_drawdown"`
	Limits      RiskLimits `json:"limits"`
	Violations  []string   `json:"violations"`
}

// =============================================================================
// Stress Test Types
// =============================================================================

// Scenario 자산군별 일회성 충격 (예: EQUITY -0.30)
type Scenario struct {
	Name   string                            `json:"name"`
	Shocks map[allocation.AssetClass]float64 `json:"shocks"`
}

// StressResult 레짐 목표비중 포트폴리오의 시나리오 손익
type StressResult struct {
	Scenario string    `json:"scenario"`
	Regime   regime.ID `json:"regime"`
	Impact   float64   `json:"impact"` // 포트폴리오 수익률 (음수=손실)
}
