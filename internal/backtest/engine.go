package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/macro"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// Engine replays regime detection month by month and simulates the
// regime-conditioned portfolio
// ⭐ SSOT: 백테스트 실행은 여기서만
type Engine struct {
	table      *allocation.Table
	detector   *regime.Detector
	normalizer *macro.Normalizer
	logger     *logger.Logger
}

// NewEngine creates a new backtest engine
func NewEngine(
	table *allocation.Table,
	detector *regime.Detector,
	normalizer *macro.Normalizer,
	log *logger.Logger,
) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		table:      table,
		detector:   detector,
		normalizer: normalizer,
		logger:     log.WithComponent("backtest"),
	}
}

// Run executes one chronological replay. Months are strictly sequential:
// detection at month t only sees months <= t.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	params, err := e.resolve(in)
	if err != nil {
		return nil, err
	}

	if len(in.Macro) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, len(in.Macro))
	}
	prepared, _, err := macro.Prepare(in.Macro)
	if err != nil {
		if errors.Is(err, macro.ErrNoData) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientData, err)
		}
		return nil, err
	}

	// months before Start still feed the rolling windows
	enriched, err := e.normalizer.Enrich(prepared)
	if err != nil {
		return nil, err
	}

	window := inRange(enriched, params.Start, params.End)
	if len(window) < 2 {
		return nil, fmt.Errorf("%w: got %d in [%s, %s]", ErrInsufficientData, len(window), params.Start, params.End)
	}
	params.Start, params.End = window[0].Date, window[len(window)-1].Date

	e.logger.WithFields(map[string]interface{}{
		"start":           params.Start,
		"end":             params.End,
		"months":          len(window),
		"funds":           params.Funds,
		"rebalance":       params.Rebalance,
		"initial_capital": params.InitialCapital,
	}).Info("Starting backtest")
	startTime := time.Now()

	detector := e.detector.WithSmoothing(params.SmoothingFactor)
	sim := NewSimulator(params.InitialCapital)
	bench := newBenchmarkTracker(in.Benchmark, params.InitialCapital, previousMonth(params.Start))

	result := &Result{
		RunID:   uuid.New().String(),
		Params:  params,
		Records: make([]MonthRecord, 0, len(window)),
	}
	history := make(regime.History, 0, len(window))

	for i, month := range window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		det := detector.Detect(regime.FromEnriched(month), history)
		history = append(history, det)

		changed := i > 0 && history[i-1].Dominant != det.Dominant
		rebalance := i == 0 || params.Rebalance.due(i) || (params.RebalanceOnTransition && changed)
		if rebalance {
			sim.Rebalance(FundWeights(in.Funds, e.table.Targets(det.Dominant)))
		}

		weights := sim.Weights()
		assetReturns := make(map[string]float64, len(weights))
		for code := range weights {
			if r, ok := in.Returns.Get(code, month.Date); ok {
				assetReturns[code] = r
			}
		}
		portfolioReturn := sim.Step(assetReturns)

		rec := MonthRecord{
			Date:            month.Date,
			Regime:          det.Dominant,
			Confidence:      det.Confidence,
			IsSticky:        det.IsSticky,
			Weights:         weights,
			AssetReturns:    assetReturns,
			PortfolioReturn: portfolioReturn,
			PortfolioValue:  sim.Value(),
			Peak:            sim.Peak(),
			Drawdown:        sim.Drawdown(),
			Rebalanced:      rebalance,
		}
		if bench != nil {
			rec.BenchmarkValue, rec.BenchmarkDrawdown = bench.step(month.Date)
		}
		result.Records = append(result.Records, rec)
	}

	result.Detections = history
	result.Transitions = history.Transitions()
	result.Summary = Summarize(result.Records, params.InitialCapital, params.RiskFreeRate)
	if bench != nil {
		result.Summary.Benchmark = CompareVsBenchmark(result.Summary, result.Records, params.InitialCapital)
	}
	result.Summary.Stress = StressComparison(result.Records, params.InitialCapital, bench != nil)

	e.logger.WithFields(map[string]interface{}{
		"run_id":       result.RunID,
		"duration_ms":  time.Since(startTime).Milliseconds(),
		"months":       result.Summary.TotalMonths,
		"transitions":  len(result.Transitions),
		"rebalances":   result.Summary.Rebalances,
		"total_return": fmt.Sprintf("%.2f%%", result.Summary.TotalReturn*100),
		"sharpe_ratio": fmt.Sprintf("%.2f", result.Summary.Sharpe),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.Summary.MaxDrawdown*100),
	}).Info("Backtest completed")

	return result, nil
}

// resolve validates the input and fills defaults
func (e *Engine) resolve(in Input) (RunParams, error) {
	p := RunParams{
		RebalanceOnTransition: in.RebalanceOnTransition,
		InitialCapital:        in.InitialCapital,
		RiskFreeRate:          in.RiskFreeRate,
		SmoothingFactor:       e.detector.Params().SmoothingFactor,
		Funds:                 len(in.Funds),
	}

	if len(in.Funds) == 0 {
		return p, fmt.Errorf("%w: no funds selected", ErrInvalidInput)
	}

	freq, err := ParseFrequency(string(in.Rebalance))
	if err != nil {
		return p, err
	}
	p.Rebalance = freq

	if p.InitialCapital < 0 {
		return p, fmt.Errorf("%w: initial capital %.2f < 0", ErrInvalidInput, p.InitialCapital)
	}
	if p.InitialCapital == 0 {
		p.InitialCapital = DefaultInitialCapital
	}

	if in.SmoothingFactor != nil {
		sf := *in.SmoothingFactor
		if sf < 0 || sf > 1 {
			return p, fmt.Errorf("%w: smoothing factor %.2f outside [0,1]", ErrInvalidInput, sf)
		}
		p.SmoothingFactor = sf
	}

	if p.Start, err = monthBound(in.Start); err != nil {
		return p, err
	}
	if p.End, err = monthBound(in.End); err != nil {
		return p, err
	}
	if p.Start != "" && p.End != "" && p.Start > p.End {
		return p, fmt.Errorf("%w: start %s after end %s", ErrInvalidInput, p.Start, p.End)
	}
	return p, nil
}

func monthBound(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	m, err := macro.ParseMonth(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return macro.MonthKey(m), nil
}

// inRange months within [start, end]; empty bounds are open
func inRange(enriched []macro.Enriched, start, end string) []macro.Enriched {
	out := make([]macro.Enriched, 0, len(enriched))
	for _, m := range enriched {
		if start != "" && m.Date < start {
			continue
		}
		if end != "" && m.Date > end {
			continue
		}
		out = append(out, m)
	}
	return out
}

// benchmarkTracker rebases a price series to the initial capital.
// Months without a price carry the last value.
type benchmarkTracker struct {
	prices  map[string]float64
	capital float64
	base    float64
	value   float64
	peak    float64
}

// newBenchmarkTracker bases the series on the month before the run when
// that price exists, otherwise on the first priced month of the run
func newBenchmarkTracker(prices map[string]float64, capital float64, before string) *benchmarkTracker {
	if len(prices) == 0 {
		return nil
	}
	b := &benchmarkTracker{prices: prices, capital: capital, value: capital, peak: capital}
	if p, ok := prices[before]; ok && p > 0 {
		b.base = p
	}
	return b
}

func previousMonth(month string) string {
	m, err := macro.ParseMonth(month)
	if err != nil {
		return ""
	}
	return macro.MonthKey(m.AddDate(0, -1, 0))
}

func (b *benchmarkTracker) step(month string) (value, drawdown float64) {
	if p, ok := b.prices[month]; ok && p > 0 {
		if b.base == 0 {
			b.base = p
		}
		b.value = b.capital * p / b.base
	}
	if b.value > b.peak {
		b.peak = b.value
	}
	return b.value, (b.peak - b.value) / b.peak
}
