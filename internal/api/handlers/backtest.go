package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// BacktestHandler handles backtest API endpoints
type BacktestHandler struct {
	orch    *brain.Orchestrator
	timeout time.Duration
	logger  *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(orch *brain.Orchestrator, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		orch:    orch,
		timeout: 2 * time.Minute,
		logger:  log.WithComponent("api.backtest"),
	}
}

// Run executes a backtest
// POST /api/backtest            → JSON outcome
// POST /api/backtest?format=md  → Markdown report
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req brain.BacktestRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, err := h.orch.Backtest(ctx, req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).Error("Backtest failed")
		}
		respondError(w, status, err.Error())
		return
	}

	switch r.URL.Query().Get("format") {
	case "md", "markdown":
		var buf bytes.Buffer
		if err := out.Performance.WriteMarkdown(&buf, out.Risk); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to render report")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    out,
		})
	}
}
