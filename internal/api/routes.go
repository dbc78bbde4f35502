package api //nolint:revive // package name is intentional

import (
	"net/http"
)

// RegisterRoutes registers the secret endpoints on the given mux.
func (h *SecretHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/secrets", h.StoreSecret)
	mux.HandleFunc("GET /api/v1/secrets", h.ListSecrets)
	mux.HandleFunc("GET /api/v1/secrets/{path...}", h.GetSecret)
	mux.HandleFunc("DELETE /api/v1/secrets/{path...}", h.DeleteSecret)
	mux.HandleFunc("POST /api/v1/secrets/rotate/{path...}", h.RotateSecret)
	mux.HandleFunc("GET /api/v1/secrets-backend", h.BackendInfo)
}

// RegisterRoutes registers the audit endpoints on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/audit", h.ListAuditLogs)
	mux.HandleFunc("GET /api/v1/audit/stats", h.GetAuditStats)
}

// RegisterRoutes registers the health endpoints on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)
}
