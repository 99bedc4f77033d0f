package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/audit"
	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/internal/regimeconfig"
	"github.com/wonny/regimelab/backend/pkg/config"
	"github.com/wonny/regimelab/backend/pkg/database"
	"github.com/wonny/regimelab/backend/pkg/logger"
	"github.com/wonny/regimelab/backend/pkg/redis"
)

// brainCmd represents the brain command
var brainCmd = &cobra.Command{
	Use:   "brain",
	Short: "Brain Orchestrator - 거시 데이터 로드 → 레짐 재생 → 감사 저장",
	Long: `Brain Orchestrator는 레짐 갱신 파이프라인을 조율합니다.

load → detect → persist

각 단계:
- load:    거시 JSON 로드, 검증, 정렬, forward fill
- detect:  파생 지표 계산 후 전체 기간 레짐 재생 (Redis 캐시)
- persist: DATABASE_URL이 있으면 regime.detections에 저장

Example:
  go run ./cmd/quant brain refresh
  go run ./cmd/quant brain refresh --macro data/macro.json`,
}

var (
	brainRefreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "레짐 갱신 실행",
		RunE:  runBrainRefresh,
	}

	// Flags
	brainMacroPath string
)

func init() {
	rootCmd.AddCommand(brainCmd)
	brainCmd.AddCommand(brainRefreshCmd)

	brainRefreshCmd.Flags().StringVar(&brainMacroPath, "macro", "", "거시 데이터 JSON (기본: MACRO_DATA_PATH)")
}

func runBrainRefresh(cmd *cobra.Command, args []string) error {
	fmt.Println("=== RegimeLab Brain Orchestrator ===")

	app, err := initApp(cmd.Context(), appOptions{infra: true, macroPath: brainMacroPath})
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.orch.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	printRunResult(result)
	return nil
}

// appOptions controls what initApp wires
type appOptions struct {
	infra     bool     // connect DB and Redis when configured
	quiet     bool     // raise the log level to warn
	macroPath string   // overrides MACRO_DATA_PATH
	smoothing *float64 // overrides SMOOTHING_FACTOR and the YAML
}

// app shared dependencies for every command
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB // nil when DATABASE_URL is unset
	redis *redis.Client
	repo  *audit.Repository
	orch  *brain.Orchestrator
}

// loadConfig reads env config and applies global flag overrides
func loadConfig(quiet bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if configFile != "" {
		cfg.Regime.ConfigPath = configFile
	}
	switch {
	case verbose:
		cfg.LogLevel = "debug"
	case quiet:
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// initApp wires config, logger, optional infra and the orchestrator
func initApp(ctx context.Context, opts appOptions) (*app, error) {
	// 1. Load config
	cfg, err := loadConfig(opts.quiet)
	if err != nil {
		return nil, err
	}
	if opts.macroPath != "" {
		cfg.Regime.MacroDataPath = opts.macroPath
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log, redis: redis.Disabled()}

	// 3. Connect to database / redis (both optional)
	if opts.infra {
		db, err := database.New(ctx, cfg)
		switch {
		case errors.Is(err, database.ErrDisabled):
			log.Debug("DATABASE_URL not set, audit trail disabled")
		case err != nil:
			return nil, fmt.Errorf("connect to database: %w", err)
		default:
			a.db = db
			a.repo = audit.NewRepository(db)
			if err := a.repo.EnsureSchema(ctx); err != nil {
				a.Close()
				return nil, fmt.Errorf("ensure audit schema: %w", err)
			}
		}

		rc, err := redis.New(ctx, cfg)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, caching disabled")
		} else {
			a.redis = rc
		}
	}

	// 4. Load regime config
	regimeCfg, yamlData, err := regimeconfig.LoadOrDefault(cfg.Regime.ConfigPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load regime config: %w", err)
	}
	for _, w := range regimeconfig.Warn(regimeCfg) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	smoothing := opts.smoothing
	if smoothing == nil && cfg.Regime.SmoothingOverride {
		sf := cfg.Regime.SmoothingFactor
		smoothing = &sf
	}

	// 5. Create orchestrator
	orch, err := brain.NewOrchestrator(brain.Options{
		Config:          regimeCfg,
		ConfigYAML:      yamlData,
		SmoothingFactor: smoothing,
		MacroDataPath:   cfg.Regime.MacroDataPath,
		Defaults: brain.Defaults{
			InitialCapital: cfg.Regime.InitialCapital,
			RiskFreeRate:   cfg.Regime.RiskFreeRate,
			Rebalance:      cfg.Regime.Rebalance,
		},
		Cache:     redis.NewCache(a.redis, "regimelab"),
		CacheTTL:  cfg.Regime.CacheTTL,
		AuditRepo: a.repo,
		Logger:    log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	a.orch = orch

	return a, nil
}

// Close releases DB and Redis connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func printRunResult(result *brain.RunResult) {
	fmt.Println("\n✅ Refresh Completed")
	PrintDoubleSeparator()

	PrintKeyValue("Run ID", result.RunID, 12)
	PrintKeyValue("Stages", strings.Join(result.CompletedStages, " → "), 12)
	PrintKeyValue("Months", fmt.Sprintf("%d", result.Months), 12)
	PrintKeyValue("Cached", fmt.Sprintf("%v", result.Cached), 12)
	PrintKeyValue("Persisted", fmt.Sprintf("%v", result.Persisted), 12)
	PrintKeyValue("Duration", result.Duration.String(), 12)

	if result.Latest != nil {
		fmt.Println()
		fmt.Println("📍 Latest Detection")
		PrintKeyValue("Month", result.Latest.Date, 12)
		PrintKeyValue("Regime", string(result.Latest.Dominant), 12)
		PrintKeyValue("Confidence", fmt.Sprintf("%.1f%%", result.Latest.Confidence*100), 12)
		if result.Latest.IsSticky {
			PrintKeyValue("Sticky", result.Latest.BlockReason, 12)
		}
	}
	fmt.Println()
}

// formatNumber formats a number with thousand separators
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
