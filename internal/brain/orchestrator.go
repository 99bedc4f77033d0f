package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/audit"
	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/macro"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/internal/regimeconfig"
	"github.com/wonny/regimelab/backend/internal/risk"
	"github.com/wonny/regimelab/backend/pkg/logger"
	"github.com/wonny/regimelab/backend/pkg/redis"
)

// ErrNotReady is returned before the first successful Refresh
var ErrNotReady = errors.New("regime state not loaded yet")

// Orchestrator coordinates load → enrich → detect → persist, and backtests
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	config     *regimeconfig.Config
	configYAML []byte
	configHash string

	table      *allocation.Table
	detector   *regime.Detector
	normalizer *macro.Normalizer
	loader     *macro.Loader
	backtester *backtest.Engine
	riskEngine *risk.Engine
	analyzer   *audit.Analyzer
	reporter   *audit.RiskReporter

	// optional infrastructure (nil / disabled = skipped)
	cache     *redis.Cache
	cacheTTL  time.Duration
	auditRepo *audit.Repository

	macroPath string
	defaults  Defaults

	mu    sync.RWMutex
	state *State

	logger *logger.Logger
}

// Defaults backtest parameters used when a request leaves them empty
type Defaults struct {
	InitialCapital float64
	RiskFreeRate   float64
	Rebalance      string
}

// Options wiring for NewOrchestrator
type Options struct {
	Config          *regimeconfig.Config
	ConfigYAML      []byte
	SmoothingFactor *float64 // overrides the config's smoothing factor
	MacroDataPath   string
	Defaults        Defaults

	Cache     *redis.Cache
	CacheTTL  time.Duration
	AuditRepo *audit.Repository

	Logger *logger.Logger
}

// State one refreshed view of the macro history and its detections
type State struct {
	Snapshot    regimeconfig.Snapshot `json:"snapshot"`
	Records     []macro.Record        `json:"-"`
	Enriched    []macro.Enriched      `json:"-"`
	History     regime.History        `json:"history"`
	Transitions []regime.Transition   `json:"transitions"`
	RefreshedAt time.Time             `json:"refreshed_at"`
}

// RunResult holds the results of one refresh run
type RunResult struct {
	RunID           string            `json:"run_id"`
	Success         bool              `json:"success"`
	CompletedStages []string          `json:"completed_stages"`
	Months          int               `json:"months"`
	Latest          *regime.Detection `json:"latest,omitempty"`
	Cached          bool              `json:"cached"`
	Persisted       bool              `json:"persisted"`
	Duration        time.Duration     `json:"duration"`
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("regime config is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	table, err := opts.Config.Table()
	if err != nil {
		return nil, fmt.Errorf("build allocation table: %w", err)
	}
	hash, err := regimeconfig.Hash(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("hash regime config: %w", err)
	}

	detector := regime.NewDetector(opts.Config.Params())
	if opts.SmoothingFactor != nil {
		detector = detector.WithSmoothing(*opts.SmoothingFactor)
	}
	normalizer := macro.NewNormalizer(macro.DefaultOptions())
	riskEngine := risk.NewEngine()

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}

	return &Orchestrator{
		config:     opts.Config,
		configYAML: opts.ConfigYAML,
		configHash: hash,
		table:      table,
		detector:   detector,
		normalizer: normalizer,
		loader:     macro.NewLoader(log),
		backtester: backtest.NewEngine(table, detector, normalizer, log),
		riskEngine: riskEngine,
		analyzer:   audit.NewAnalyzer(table, log),
		reporter:   audit.NewRiskReporter(riskEngine, table, log.Zerolog()),
		cache:      opts.Cache,
		cacheTTL:   ttl,
		auditRepo:  opts.AuditRepo,
		macroPath:  opts.MacroDataPath,
		defaults:   opts.Defaults,
		logger:     log.WithComponent("brain"),
	}, nil
}

// Table regime allocation table
func (o *Orchestrator) Table() *allocation.Table { return o.table }

// Config active regime configuration
func (o *Orchestrator) Config() *regimeconfig.Config { return o.config }

// ConfigHash hash of the active regime configuration
func (o *Orchestrator) ConfigHash() string { return o.configHash }

// Detector active detector
func (o *Orchestrator) Detector() *regime.Detector { return o.detector }

// State latest refreshed state
func (o *Orchestrator) State() (*State, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state == nil {
		return nil, ErrNotReady
	}
	return o.state, nil
}

// Current latest detection
func (o *Orchestrator) Current() (regime.Detection, error) {
	st, err := o.State()
	if err != nil {
		return regime.Detection{}, err
	}
	last, ok := st.History.Last()
	if !ok {
		return regime.Detection{}, ErrNotReady
	}
	return last, nil
}

// Refresh reloads the macro file, replays detection and persists the result.
// The previous state stays in place when any stage fails.
func (o *Orchestrator) Refresh(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", result.RunID)

	records, _, err := o.loader.LoadFile(o.macroPath)
	if err != nil {
		return result, fmt.Errorf("load macro data: %w", err)
	}
	result.CompletedStages = append(result.CompletedStages, "load")

	st, cached, err := o.Detect(ctx, records)
	if err != nil {
		return result, err
	}
	result.CompletedStages = append(result.CompletedStages, "detect")
	result.Cached = cached
	result.Months = len(st.History)

	if o.auditRepo != nil {
		if err := o.auditRepo.SaveDetections(ctx, st.Snapshot, st.History); err != nil {
			// 감사 저장 실패는 탐지 결과를 막지 않음
			log.WithError(err).Warn("Failed to persist detections")
		} else {
			result.Persisted = true
			result.CompletedStages = append(result.CompletedStages, "persist")
		}
	}

	o.mu.Lock()
	o.state = st
	o.mu.Unlock()

	if last, ok := st.History.Last(); ok {
		result.Latest = &last
	}
	result.Success = true
	result.Duration = time.Since(start)

	fields := map[string]interface{}{
		"months":   result.Months,
		"cached":   cached,
		"duration": result.Duration,
	}
	if result.Latest != nil {
		fields["regime"] = result.Latest.Dominant
		fields["confidence"] = result.Latest.Confidence
	}
	log.WithFields(fields).Info("Regime state refreshed")

	return result, nil
}

// Detect runs the detection pipeline over caller-supplied records without
// touching the orchestrator's state. The replay is cached per config and data.
func (o *Orchestrator) Detect(ctx context.Context, records []macro.Record) (*State, bool, error) {
	prepared, _, err := macro.Prepare(records)
	if err != nil {
		return nil, false, err
	}
	enriched, err := o.normalizer.Enrich(prepared)
	if err != nil {
		return nil, false, fmt.Errorf("enrich macro data: %w", err)
	}

	dataID, err := audit.DataSnapshotID(prepared)
	if err != nil {
		return nil, false, err
	}
	snap, err := regimeconfig.NewSnapshot(o.config, o.configYAML, dataID)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot config: %w", err)
	}

	replay := func() (regime.History, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return o.detector.ReplayEnriched(enriched), nil
	}

	var (
		history regime.History
		cached  bool
	)
	key, keyErr := redis.HashKey(o.configHash, dataID, o.detector.Params().SmoothingFactor)
	if keyErr == nil && o.cache != nil {
		history, cached, err = redis.GetOrSet(ctx, o.cache, redis.DetectionKey(key), o.cacheTTL, replay)
	} else {
		history, err = replay()
	}
	if err != nil {
		return nil, false, err
	}

	return &State{
		Snapshot:    *snap,
		Records:     prepared,
		Enriched:    enriched,
		History:     history,
		Transitions: history.Transitions(),
		RefreshedAt: time.Now(),
	}, cached, nil
}

// =============================================================================
// Backtest
// =============================================================================

// BacktestRequest one backtest; empty fields fall back to the loaded state and defaults
type BacktestRequest struct {
	Funds     []allocation.Fund      `json:"funds,omitempty"`
	Returns   *backtest.ReturnSeries `json:"returns,omitempty"`
	Macro     []macro.Record         `json:"macro,omitempty"`
	Benchmark map[string]float64     `json:"benchmark,omitempty"`
	// MacroBenchmark uses the macro sp500 level as benchmark when Benchmark is empty
	MacroBenchmark bool `json:"macroBenchmark"`

	Start                 string   `json:"start,omitempty"`
	End                   string   `json:"end,omitempty"`
	Rebalance             string   `json:"rebalance,omitempty"`
	RebalanceOnTransition bool     `json:"rebalanceOnTransition"`
	InitialCapital        float64  `json:"initialCapital,omitempty"`
	RiskFreeRate          *float64 `json:"riskFreeRate,omitempty"`
	SmoothingFactor       *float64 `json:"smoothingFactor,omitempty"`

	MonteCarlo bool `json:"monteCarlo"`
	Save       bool `json:"save"`
}

// BacktestOutcome result plus its derived reports
type BacktestOutcome struct {
	Result      *backtest.Result         `json:"result"`
	Performance *audit.PerformanceReport `json:"performance"`
	Risk        *audit.RiskReport        `json:"risk"`
	Snapshot    regimeconfig.Snapshot    `json:"snapshot"`
	Cached      bool                     `json:"cached"`
	Saved       bool                     `json:"saved"`
}

// Backtest runs (or fetches from cache) one backtest and builds its reports
func (o *Orchestrator) Backtest(ctx context.Context, req BacktestRequest) (*BacktestOutcome, error) {
	in, snap, err := o.backtestInput(ctx, req)
	if err != nil {
		return nil, err
	}

	run := func() (*BacktestOutcome, error) {
		res, err := o.backtester.Run(ctx, in)
		if err != nil {
			return nil, err
		}

		riskIn := audit.InputFromBacktest(res)
		limits := risk.DefaultRiskLimits()
		riskIn.Limits = &limits
		if req.MonteCarlo {
			mc := risk.DefaultMonteCarloConfig()
			riskIn.MonteCarloConfig = &mc
		}
		rr, err := o.reporter.GenerateReport(ctx, riskIn)
		if err != nil {
			return nil, err
		}

		return &BacktestOutcome{
			Result:      res,
			Performance: o.analyzer.Analyze(res, in.Funds),
			Risk:        rr,
			Snapshot:    snap,
		}, nil
	}

	var (
		out    *BacktestOutcome
		cached bool
	)
	key, keyErr := redis.HashKey(o.configHash, snap.DataSnapshotID, req)
	if keyErr == nil && o.cache != nil && !req.MonteCarlo {
		out, cached, err = redis.GetOrSet(ctx, o.cache, redis.BacktestKey(key), o.cacheTTL, run)
	} else {
		out, err = run()
	}
	if err != nil {
		return nil, err
	}
	out.Cached = cached

	if req.Save {
		if o.auditRepo == nil {
			o.logger.Warn("Backtest save requested but no database is configured")
		} else if err := o.auditRepo.SaveBacktestRun(ctx, snap, out.Result); err != nil {
			return nil, fmt.Errorf("save backtest run: %w", err)
		} else {
			out.Saved = true
			if err := o.auditRepo.SaveRiskReport(ctx, out.Risk); err != nil {
				o.logger.WithError(err).Warn("Failed to persist risk report")
			}
		}
	}

	return out, nil
}

// backtestInput fills a request's gaps from the loaded state and defaults
func (o *Orchestrator) backtestInput(ctx context.Context, req BacktestRequest) (backtest.Input, regimeconfig.Snapshot, error) {
	var (
		records  []macro.Record
		enriched []macro.Enriched
		snap     regimeconfig.Snapshot
	)
	if len(req.Macro) > 0 {
		st, _, err := o.Detect(ctx, req.Macro)
		if err != nil {
			return backtest.Input{}, snap, fmt.Errorf("%w: %v", backtest.ErrInvalidInput, err)
		}
		records, enriched, snap = st.Records, st.Enriched, st.Snapshot
	} else {
		st, err := o.State()
		if err != nil {
			return backtest.Input{}, snap, err
		}
		records, enriched, snap = st.Records, st.Enriched, st.Snapshot
	}

	funds, returns := req.Funds, req.Returns
	if len(funds) == 0 && returns == nil {
		funds, returns = backtest.MacroFunds(), backtest.MacroAssetReturns(enriched)
	}

	benchmark := req.Benchmark
	if len(benchmark) == 0 && req.MacroBenchmark {
		benchmark = backtest.MacroBenchmark(enriched)
	}

	freqName := req.Rebalance
	if freqName == "" {
		freqName = o.defaults.Rebalance
	}
	freq, err := backtest.ParseFrequency(freqName)
	if err != nil {
		return backtest.Input{}, snap, err
	}

	capital := req.InitialCapital
	if capital == 0 {
		capital = o.defaults.InitialCapital
	}
	rf := o.defaults.RiskFreeRate
	if req.RiskFreeRate != nil {
		rf = *req.RiskFreeRate
	}

	return backtest.Input{
		Funds:                 funds,
		Returns:               returns,
		Macro:                 records,
		Start:                 req.Start,
		End:                   req.End,
		Rebalance:             freq,
		RebalanceOnTransition: req.RebalanceOnTransition,
		InitialCapital:        capital,
		RiskFreeRate:          rf,
		SmoothingFactor:       req.SmoothingFactor,
		Benchmark:             benchmark,
	}, snap, nil
}
