package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/pkg/logger"
)

const (
	writeWait       = 10 * time.Second
	defaultInterval = 250 * time.Millisecond
	maxInterval     = 10 * time.Second
)

// ReplayMessage one frame of the replay stream
type ReplayMessage struct {
	Type  string      `json:"type"` // detection | transition | done | error
	Index int         `json:"index"`
	Total int         `json:"total"`
	Data  interface{} `json:"data,omitempty"`
}

// ReplayHandler streams the detection history month by month over a websocket
type ReplayHandler struct {
	orch     *brain.Orchestrator
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewReplayHandler creates a new replay handler
func NewReplayHandler(orch *brain.Orchestrator, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		orch: orch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.WithComponent("api.replay"),
	}
}

// Stream replays detections from ?from=YYYY-MM at ?interval=<ms> per month
// GET /ws/regime/replay
func (h *ReplayHandler) Stream(w http.ResponseWriter, r *http.Request) {
	st, err := h.orch.State()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	interval := defaultInterval
	if ms := r.URL.Query().Get("interval"); ms != "" {
		v, err := strconv.Atoi(ms)
		if err != nil || v < 0 {
			respondError(w, http.StatusBadRequest, "interval must be a non-negative integer (ms)")
			return
		}
		interval = time.Duration(v) * time.Millisecond
		if interval > maxInterval {
			interval = maxInterval
		}
	}
	from := r.URL.Query().Get("from")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// read pump: detects client close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	transitions := make(map[string]interface{}, len(st.Transitions))
	for _, t := range st.Transitions {
		transitions[t.Date] = t
	}

	history := st.History
	total := len(history)
	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()

	for i, det := range history {
		if from != "" && det.Date < from {
			continue
		}
		if err := h.send(conn, ReplayMessage{Type: "detection", Index: i, Total: total, Data: det}); err != nil {
			return
		}
		if t, ok := transitions[det.Date]; ok {
			if err := h.send(conn, ReplayMessage{Type: "transition", Index: i, Total: total, Data: t}); err != nil {
				return
			}
		}
		if interval == 0 {
			continue
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}

	if err := h.send(conn, ReplayMessage{Type: "done", Index: total, Total: total}); err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replay complete"),
		time.Now().Add(writeWait))
}

func (h *ReplayHandler) send(conn *websocket.Conn, msg ReplayMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.WithError(err).Debug("Replay client gone")
		return err
	}
	return nil
}

