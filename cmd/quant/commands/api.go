package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/api"
	"github.com/wonny/regimelab/backend/internal/api/handlers"
	"github.com/wonny/regimelab/backend/internal/scheduler"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 시작 시 거시 데이터를 로드하고 레짐 이력을 재생
- HTTP API 서버 시작 (Redis 또는 프로세스 내 rate limit)
- --with-scheduler: 월간 레짐 갱신 스케줄러 동시 실행

Endpoints:
  GET  /health                      - Health check
  GET  /api/regime/current          - 최근 월 레짐 + 전환 밴드
  GET  /api/regime/history          - 탐지 이력
  GET  /api/regime/{id}             - 레짐 메타 + 배분 밴드
  POST /api/regime/{id}/missing     - 누락 자산군
  POST /api/regime/detect           - 임의 거시 데이터 탐지
  POST /api/regime/refresh          - 거시 데이터 재로드
  POST /api/backtest                - 백테스트 (?format=md)
  GET  /ws/regime/replay            - 탐지 이력 websocket 재생

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "레짐 갱신 스케줄러 함께 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== RegimeLab API Server ===")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Config, logger, DB, Redis, orchestrator
	app, err := initApp(ctx, appOptions{infra: true})
	if err != nil {
		return err
	}
	defer app.Close()

	cfg, log := app.cfg, app.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log.WithFields(map[string]interface{}{
		"port":     cfg.Port,
		"env":      cfg.Env,
		"database": app.db != nil,
		"redis":    app.redis.Enabled(),
	}).Info("Initializing API server")

	// 2. Initial refresh; a missing macro file leaves /health in "starting"
	if _, err := app.orch.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Initial regime refresh failed, POST /api/regime/refresh to retry")
	}

	// 3. Handlers and router
	proxies, err := api.ParseTrustedProxies(cfg.API.TrustedProxies)
	if err != nil {
		return err
	}
	limiter := api.NewRateLimiter(app.redis, cfg.API.RateLimit, cfg.API.RateBurst, log).WithTrustedProxies(proxies)
	router := api.NewRouter(api.Handlers{
		Regime:   handlers.NewRegimeHandler(app.orch, log),
		Backtest: handlers.NewBacktestHandler(app.orch, log),
		Replay:   handlers.NewReplayHandler(app.orch, log),
		Health:   api.NewHealthChecker(app.orch, app.db, app.redis),
	}, limiter, log)

	// 4. Optional scheduler
	var sched *scheduler.Scheduler
	if apiWithScheduler {
		if sched, err = newScheduler(app); err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// 5. Start server with graceful shutdown
	server := api.New(cfg, log, router)
	if err := server.Listen(); err != nil {
		return err
	}
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://%s\n", server.Addr())
	if sched != nil {
		fmt.Printf("⏰ Scheduler jobs: %v\n", sched.GetAllJobs())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
