package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/regimelab/backend/internal/api/handlers"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// Handlers every endpoint group served by the router
type Handlers struct {
	Regime   *handlers.RegimeHandler
	Backtest *handlers.BacktestHandler
	Replay   *handlers.ReplayHandler
	Health   *HealthChecker
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, limiter *RateLimiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.Handle("/health", h.Health).Methods("GET")

	// API
	api := r.PathPrefix("/api").Subrouter()
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	// Regime endpoints
	api.HandleFunc("/regime/current", h.Regime.GetCurrent).Methods("GET")
	api.HandleFunc("/regime/history", h.Regime.GetHistory).Methods("GET")
	api.HandleFunc("/regime/bands", h.Regime.GetBands).Methods("GET")
	api.HandleFunc("/regime/sanity", h.Regime.GetSanity).Methods("GET")
	api.HandleFunc("/regime/detect", h.Regime.Detect).Methods("POST")
	api.HandleFunc("/regime/refresh", h.Regime.Refresh).Methods("POST")
	api.HandleFunc("/regime/{id}", h.Regime.GetRegime).Methods("GET")
	api.HandleFunc("/regime/{id}/missing", h.Regime.GetMissing).Methods("POST")

	// Backtest endpoints
	api.HandleFunc("/backtest", h.Backtest.Run).Methods("POST")

	// Websocket replay
	r.HandleFunc("/ws/regime/replay", h.Replay.Stream).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					writeJSON(w, http.StatusInternalServerError, map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
