package backtest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/macro"
	"github.com/wonny/regimelab/backend/internal/regime"
)

var (
	// ErrInsufficientData fewer than two months to replay
	ErrInsufficientData = errors.New("need at least 2 months of macro data to backtest")
	// ErrInvalidInput malformed backtest request
	ErrInvalidInput = errors.New("invalid backtest input")
)

// DefaultInitialCapital used when Input.InitialCapital is zero
const DefaultInitialCapital = 100000.0

// Frequency how often target weights are recomputed from the regime
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

// ParseFrequency accepts monthly/quarterly/annual (case-insensitive, empty = monthly)
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Monthly, nil
	case Monthly, Quarterly, Annual:
		return f, nil
	case "yearly":
		return Annual, nil
	default:
		return "", fmt.Errorf("%w: unknown rebalance frequency %q", ErrInvalidInput, s)
	}
}

// due reports whether month i (0 = first month of the run) is a rebalance month
func (f Frequency) due(i int) bool {
	switch f {
	case Quarterly:
		return i%3 == 0
	case Annual:
		return i%12 == 0
	default:
		return true
	}
}

// Input 백테스트 입력 (모두 메모리에 올라온 상태로 전달)
type Input struct {
	Funds   []allocation.Fund
	Returns *ReturnSeries
	Macro   []macro.Record

	Start string // YYYY-MM, empty = first macro month
	End   string // YYYY-MM, empty = last macro month

	Rebalance             Frequency
	RebalanceOnTransition bool // also recompute weights when the dominant regime changes

	InitialCapital  float64
	RiskFreeRate    float64
	SmoothingFactor *float64 // nil = detector default

	// Benchmark price level per month (YYYY-MM), optional
	Benchmark map[string]float64
}

// RunParams effective parameters of a run
type RunParams struct {
	Start                 string    `json:"start"`
	End                   string    `json:"end"`
	Rebalance             Frequency `json:"rebalance"`
	RebalanceOnTransition bool      `json:"rebalanceOnTransition"`
	InitialCapital        float64   `json:"initialCapital"`
	RiskFreeRate          float64   `json:"riskFreeRate"`
	SmoothingFactor       float64   `json:"smoothingFactor"`
	Funds                 int       `json:"funds"`
}

// MonthRecord one simulated month
type MonthRecord struct {
	Date              string             `json:"date"`
	Regime            regime.ID          `json:"regime"`
	Confidence        float64            `json:"confidence"`
	IsSticky          bool               `json:"isSticky"`
	Weights           map[string]float64 `json:"weights"`
	AssetReturns      map[string]float64 `json:"assetReturns"`
	PortfolioReturn   float64            `json:"portfolioReturn"`
	PortfolioValue    float64            `json:"portfolioValue"`
	Peak              float64            `json:"peak"`
	Drawdown          float64            `json:"drawdown"`
	Rebalanced        bool               `json:"rebalanced"`
	BenchmarkValue    float64            `json:"benchmarkValue,omitempty"`
	BenchmarkDrawdown float64            `json:"benchmarkDrawdown,omitempty"`
}

// RegimeStats performance attributed to months in one regime
type RegimeStats struct {
	Months       int     `json:"months"`
	AvgMonthly   float64 `json:"avgMonthlyReturn"`
	AnnualReturn float64 `json:"annualizedReturn"` // (1+avg)^12-1
	AnnualVol    float64 `json:"annualizedVol"`    // popStd·√12
	Sharpe       float64 `json:"sharpe"`
	TotalReturn  float64 `json:"totalReturn"` // compounded inside the regime
}

// RollingWindow a 12-month window of the portfolio
type RollingWindow struct {
	Start  string  `json:"start"`
	End    string  `json:"end"`
	Return float64 `json:"return"`
}

// BenchmarkStats benchmark performance and the portfolio's edge over it
type BenchmarkStats struct {
	TotalReturn      float64 `json:"totalReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	EndValue         float64 `json:"endValue"`
	ExcessReturn     float64 `json:"excessReturn"`     // portfolio - benchmark, annualised
	RelativeDrawdown float64 `json:"relativeDrawdown"` // benchmark MDD - portfolio MDD
}

// StressPeriod portfolio vs benchmark inside REGIME_C / REGIME_D months
type StressPeriod struct {
	Regime                 regime.ID `json:"regime"`
	Months                 int       `json:"months"`
	PortfolioReturn        float64   `json:"portfolioReturn"`
	BenchmarkReturn        float64   `json:"benchmarkReturn"`
	PortfolioWorstDrawdown float64   `json:"portfolioWorstDrawdown"`
	BenchmarkWorstDrawdown float64   `json:"benchmarkWorstDrawdown"`
}

// Summary aggregate statistics of a run
type Summary struct {
	TotalReturn        float64                   `json:"totalReturn"`
	TotalMonths        int                       `json:"totalMonths"`
	AnnualizedReturn   float64                   `json:"annualizedReturn"`
	AnnualizedVol      float64                   `json:"annualizedVol"`
	Sharpe             float64                   `json:"sharpe"`
	MaxDrawdown        float64                   `json:"maxDrawdown"`
	LongestDrawdown    int                       `json:"longestDrawdownMonths"`
	WinRate            float64                   `json:"winRate"`
	EndValue           float64                   `json:"endValue"`
	Rebalances         int                       `json:"rebalances"`
	VaR95              float64                   `json:"monthlyVar95"`
	CVaR95             float64                   `json:"monthlyCvar95"`
	BestRolling12M     *RollingWindow            `json:"bestRolling12m,omitempty"`
	WorstRolling12M    *RollingWindow            `json:"worstRolling12m,omitempty"`
	PerRegime          map[regime.ID]RegimeStats `json:"perRegime"`
	RegimeDistribution map[regime.ID]float64     `json:"regimeDistribution"`
	Benchmark          *BenchmarkStats           `json:"benchmark,omitempty"`
	Stress             []StressPeriod            `json:"stress,omitempty"`
}

// Result 백테스트 결과 (실행 완료 후 불변)
type Result struct {
	RunID       string              `json:"runId"`
	Params      RunParams           `json:"params"`
	Records     []MonthRecord       `json:"records"`
	Transitions []regime.Transition `json:"transitions"`
	Summary     Summary             `json:"summary"`

	Detections regime.History `json:"-"`
}

// Returns monthly portfolio returns in order
func (r *Result) Returns() []float64 {
	out := make([]float64, len(r.Records))
	for i, m := range r.Records {
		out[i] = m.PortfolioReturn
	}
	return out
}

// HasBenchmark reports whether benchmark values were tracked
func (r *Result) HasBenchmark() bool {
	return r.Summary.Benchmark != nil
}
