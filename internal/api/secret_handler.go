// Package api provides the HTTP handlers for the secret store.
package api //nolint:revive // package name is intentional

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sort"

	"github.com/hishamos/secrets/internal/audit"
	"github.com/hishamos/secrets/internal/auth"
	"github.com/hishamos/secrets/internal/httputil"
	"github.com/hishamos/secrets/internal/observability"
	"github.com/hishamos/secrets/internal/secret"
)

// SecretService is the subset of *secret.Service used by the handlers.
type SecretService interface {
	Store(ctx context.Context, path string, payload secret.Payload, metadata secret.Metadata) error
	Get(ctx context.Context, path string) (secret.Payload, error)
	Delete(ctx context.Context, path string) error
	Rotate(ctx context.Context, path string, payload secret.Payload) error
	List(ctx context.Context, prefix string) ([]string, error)
	Backend() string
	Info() secret.Info
	Available() bool
}

// SecretHandler serves the secret CRUD endpoints.
type SecretHandler struct {
	service      SecretService
	audit        *audit.Logger
	logger       *slog.Logger
	maxBodyBytes int64
	trusted      []*net.IPNet
}

// SecretHandlerConfig configures a SecretHandler.
type SecretHandlerConfig struct {
	Service      SecretService
	Audit        *audit.Logger
	Logger       *slog.Logger
	MaxBodyBytes int64

	// TrustedProxies are peers whose forwarding headers name the client
	// recorded in audit entries.
	TrustedProxies []*net.IPNet
}

// NewSecretHandler creates a new secret handler.
func NewSecretHandler(cfg SecretHandlerConfig) *SecretHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = httputil.DefaultMaxBodyBytes
	}
	return &SecretHandler{
		service:      cfg.Service,
		audit:        cfg.Audit,
		logger:       logger,
		maxBodyBytes: maxBody,
		trusted:      cfg.TrustedProxies,
	}
}

// StoreRequest is the body of POST /api/v1/secrets.
type StoreRequest struct {
	Path     string          `json:"path"`
	Data     secret.Payload  `json:"data"`
	Metadata secret.Metadata `json:"metadata,omitempty"`
}

// RotateRequest is the body of POST /api/v1/secrets/rotate/{path...}.
type RotateRequest struct {
	Data secret.Payload `json:"data"`
}

// StoreSecret handles POST /api/v1/secrets.
func (h *SecretHandler) StoreSecret(w http.ResponseWriter, r *http.Request) {
	var req StoreRequest
	if err := bodyValidator.decode(r.Body, h.maxBodyBytes, bodyValidator.store, &req); err != nil {
		h.record(r, audit.ActionStore, req.Path, nil, err)
		writeBodyError(h.logger, w, err)
		return
	}

	err := h.service.Store(r.Context(), req.Path, req.Data, req.Metadata)
	h.record(r, audit.ActionStore, req.Path, req.Data, err)
	if err != nil {
		writeSecretError(h.logger, w, err)
		return
	}

	path, _ := secret.NormalizePath(req.Path)
	writeJSON(h.logger, w, http.StatusCreated, map[string]any{
		"path":   path,
		"stored": true,
	})
}

// GetSecret handles GET /api/v1/secrets/{path...}.
func (h *SecretHandler) GetSecret(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")

	payload, err := h.service.Get(r.Context(), path)
	h.record(r, audit.ActionRead, path, nil, err)
	if err != nil {
		writeSecretError(h.logger, w, err)
		return
	}

	normalized, _ := secret.NormalizePath(path)
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"path": normalized,
		"data": payload,
	})
}

// DeleteSecret handles DELETE /api/v1/secrets/{path...}.
func (h *SecretHandler) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")

	err := h.service.Delete(r.Context(), path)
	h.record(r, audit.ActionDelete, path, nil, err)
	if err != nil {
		writeSecretError(h.logger, w, err)
		return
	}

	normalized, _ := secret.NormalizePath(path)
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"path":    normalized,
		"deleted": true,
	})
}

// RotateSecret handles POST /api/v1/secrets/rotate/{path...}.
func (h *SecretHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")

	var req RotateRequest
	if err := bodyValidator.decode(r.Body, h.maxBodyBytes, bodyValidator.rotate, &req); err != nil {
		h.record(r, audit.ActionRotate, path, nil, err)
		writeBodyError(h.logger, w, err)
		return
	}

	err := h.service.Rotate(r.Context(), path, req.Data)
	h.record(r, audit.ActionRotate, path, req.Data, err)
	if err != nil {
		writeSecretError(h.logger, w, err)
		return
	}

	normalized, _ := secret.NormalizePath(path)
	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"path":    normalized,
		"rotated": true,
	})
}

// ListSecrets handles GET /api/v1/secrets?prefix=.
func (h *SecretHandler) ListSecrets(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	keys, err := h.service.List(r.Context(), prefix)
	h.record(r, audit.ActionList, prefix, nil, err)
	if err != nil {
		writeSecretError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"prefix": prefix,
		"keys":   keys,
	})
}

// BackendInfo handles GET /api/v1/secrets-backend.
func (h *SecretHandler) BackendInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, h.service.Info())
}

// record writes an audit entry. Only payload field names are recorded.
func (h *SecretHandler) record(r *http.Request, action audit.Action, path string, payload secret.Payload, err error) {
	if !h.audit.Enabled() {
		return
	}

	if normalized, nerr := secret.NormalizePath(path); nerr == nil {
		path = normalized
	}
	actor := auth.ActorFromContext(r.Context())

	entry := &audit.Entry{
		ActorID:   actor.ID,
		ActorType: actor.Type,
		ActorIP:   auth.ClientIP(r, h.trusted),
		Action:    action,
		Path:      path,
		Backend:   h.service.Backend(),
		RequestID: observability.RequestIDFromContext(r.Context()),
		UserAgent: r.UserAgent(),
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if len(payload) > 0 {
		entry.Fields = payload.Keys()
		sort.Strings(entry.Fields)
	}
	h.audit.Record(r.Context(), entry)
}
