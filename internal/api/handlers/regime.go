package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/internal/macro"
	"github.com/wonny/regimelab/backend/internal/regime"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

// RegimeHandler handles regime detection API endpoints
// ⭐ SSOT: 레짐 API 핸들러는 이 구조체에서만
type RegimeHandler struct {
	orch   *brain.Orchestrator
	logger *logger.Logger
}

// NewRegimeHandler creates a new regime handler
func NewRegimeHandler(orch *brain.Orchestrator, log *logger.Logger) *RegimeHandler {
	return &RegimeHandler{
		orch:   orch,
		logger: log.WithComponent("api.regime"),
	}
}

// CurrentResponse latest detection with the allocation it implies
type CurrentResponse struct {
	Detection          regime.Detection  `json:"detection"`
	Regime             allocation.Regime `json:"regime"`
	TransitionBands    allocation.Bands  `json:"transitionBands"`
	TransitionProgress float64           `json:"transitionProgress"`
	MonthsInRegime     int               `json:"monthsInRegime"`
	ConfigHash         string            `json:"configHash"`
	DataSnapshotID     string            `json:"dataSnapshotId"`
	RefreshedAt        time.Time         `json:"refreshedAt"`
}

// GetCurrent returns the latest month's detection
// GET /api/regime/current
func (h *RegimeHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	st, err := h.orch.State()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	last, ok := st.History.Last()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, brain.ErrNotReady.Error())
		return
	}

	table := h.orch.Table()
	meta, _ := table.Regime(last.Dominant)
	bands, progress := table.TransitionBands(st.History)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": CurrentResponse{
			Detection:          last,
			Regime:             meta,
			TransitionBands:    bands,
			TransitionProgress: progress,
			MonthsInRegime:     st.History.MonthsSinceChange() + 1,
			ConfigHash:         st.Snapshot.ConfigHash,
			DataSnapshotID:     st.Snapshot.DataSnapshotID,
			RefreshedAt:        st.RefreshedAt,
		},
	})
}

// GetHistory returns the replayed detections
// GET /api/regime/history?limit=24
func (h *RegimeHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	st, err := h.orch.State()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	history := st.History
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"data":         history,
		"transitions":  st.Transitions,
		"distribution": st.History.Distribution(),
		"count":        len(history),
	})
}

// GetBands returns every regime with its allocation bands
// GET /api/regime/bands
func (h *RegimeHandler) GetBands(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.orch.Table().Regimes(),
	})
}

// GetRegime returns one regime's metadata and bands
// GET /api/regime/{id}
func (h *RegimeHandler) GetRegime(w http.ResponseWriter, r *http.Request) {
	id, err := regime.ParseID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	meta, ok := h.orch.Table().Regime(id)
	if !ok {
		respondError(w, http.StatusNotFound, "regime not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"data":     meta,
		"required": h.orch.Table().Required(id),
	})
}

// MissingRequest fund universe to check against a regime
type MissingRequest struct {
	Funds []allocation.Fund `json:"funds"`
}

// GetMissing lists asset classes the regime needs but the funds do not cover
// POST /api/regime/{id}/missing
func (h *RegimeHandler) GetMissing(w http.ResponseWriter, r *http.Request) {
	id, err := regime.ParseID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	var req MissingRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	missing := h.orch.Table().MissingAssetClasses(id, req.Funds)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"regime":  id,
		"missing": missing,
		"covered": len(missing) == 0,
	})
}

// Detect runs detection over a caller-supplied macro history
// POST /api/regime/detect
func (h *RegimeHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var records []macro.Record
	if err := decodeBody(w, r, &records); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	st, cached, err := h.orch.Detect(r.Context(), records)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"data":        st.History,
		"transitions": st.Transitions,
		"snapshot":    st.Snapshot,
		"cached":      cached,
	})
}

// Refresh reloads the macro file and replays detection
// POST /api/regime/refresh
func (h *RegimeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	res, err := h.orch.Refresh(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Regime refresh failed")
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    res,
	})
}

// GetSanity runs the historical acceptance scenarios against the active model
// GET /api/regime/sanity
func (h *RegimeHandler) GetSanity(w http.ResponseWriter, r *http.Request) {
	report := regime.RunSanityChecks(h.orch.Detector())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"data":       report,
		"all_passed": report.AllPassed(),
	})
}
