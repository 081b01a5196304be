package handlers

import (
	"net/http"
	"time"

	"github.com/watzon/syncstore/internal/store"
)

// HealthHandlers answers liveness and readiness probes.
type HealthHandlers struct {
	manager *store.Manager
	version string
	started time.Time
}

func NewHealthHandlers(manager *store.Manager, version string) *HealthHandlers {
	return &HealthHandlers{
		manager: manager,
		version: version,
		started: time.Now(),
	}
}

// Liveness handles GET /health/live: the process is up.
func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

// Readiness handles GET /health/ready: every namespace backend answers a
// ping.
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Ping(r.Context()); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Health handles GET /health: liveness plus version and uptime.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.manager.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, map[string]any{
		"status":     status,
		"version":    h.version,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"namespaces": h.manager.Namespaces(),
	})
}
