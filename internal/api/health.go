package api //nolint:revive // package name is intentional

import (
	"log/slog"
	"net/http"

	"github.com/hishamos/secrets/internal/healthcheck"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	service SecretService
	prober  *healthcheck.Prober
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler. prober may be nil.
func NewHealthHandler(service SecretService, prober *healthcheck.Prober, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{service: service, prober: prober, logger: logger}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready. The service is ready when a backend is
// active and every probed dependency is healthy.
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	state := "ok"

	unhealthy := h.prober.Unhealthy()
	if !h.service.Available() || len(unhealthy) > 0 {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}

	writeJSON(h.logger, w, status, map[string]any{
		"status":       state,
		"backend":      h.service.Backend(),
		"dependencies": h.prober.Results(),
	})
}
