package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hilthontt/chorus/internal/infrastructure/json"
	"github.com/hilthontt/chorus/internal/infrastructure/ws"
)

type StatsProvider interface {
	Stats() ws.Stats
}

type Handler struct {
	started time.Time
	healthy atomic.Bool
	gateway StatsProvider
}

func NewHandler(gateway StatsProvider) *Handler {
	h := &Handler{started: time.Now(), gateway: gateway}
	h.healthy.Store(true)
	return h
}

// SetHealthy flips the health check result; main marks the node unhealthy while
// draining.
func (h *Handler) SetHealthy(ok bool) {
	h.healthy.Store(ok)
}

// GetHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the node, its uptime and gateway load
// @Tags         health
// @Produce      json
// @Success      200 {object} healthResponse "Service is healthy"
// @Failure      503 {object} healthResponse "Service is unhealthy"
// @Router       /health [get]
// @Router       /healthz [get]
// @Router       /ready [get]
// @Router       /live [get]
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	if h.gateway != nil {
		stats := h.gateway.Stats()
		resp.Connections = stats.Connections
		resp.Rooms = stats.Rooms
	}

	status := http.StatusOK
	if !h.healthy.Load() {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	json.Write(w, status, resp)
}
