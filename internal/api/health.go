package api

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/pkg/database"
	"github.com/wonny/regimelab/backend/pkg/redis"
)

// HealthChecker reports server, regime state and backing store health
type HealthChecker struct {
	orch  *brain.Orchestrator
	db    *database.DB  // nil = persistence disabled
	redis *redis.Client // disabled client = cache disabled
}

// NewHealthChecker creates a health handler
func NewHealthChecker(orch *brain.Orchestrator, db *database.DB, rc *redis.Client) *HealthChecker {
	return &HealthChecker{orch: orch, db: db, redis: rc}
}

// ServeHTTP returns server health status.
// Degraded backing stores are reported but never fail the check; an unloaded regime state does.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	body := map[string]interface{}{
		"status":      "ok",
		"service":     "regimelab-api",
		"config_hash": h.orch.ConfigHash(),
	}
	status := http.StatusOK

	if cur, err := h.orch.Current(); err != nil {
		body["status"] = "starting"
		body["regime"] = nil
		status = http.StatusServiceUnavailable
	} else {
		body["regime"] = map[string]interface{}{
			"month":      cur.Date,
			"dominant":   cur.Dominant,
			"confidence": cur.Confidence,
		}
	}

	if h.db != nil {
		hs, err := h.db.HealthCheck(ctx)
		if err != nil {
			body["database"] = map[string]interface{}{"healthy": false, "error": err.Error()}
		} else {
			body["database"] = hs
		}
	} else {
		body["database"] = "disabled"
	}

	switch {
	case !h.redis.Enabled():
		body["redis"] = "disabled"
	case h.redis.Redis().Ping(ctx).Err() != nil:
		body["redis"] = "unreachable"
	default:
		body["redis"] = "ok"
	}

	writeJSON(w, status, body)
}
