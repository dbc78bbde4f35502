package api //nolint:revive // package name is intentional

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hishamos/secrets/internal/audit"
)

const maxAuditLimit = 1000

// AuditHandler handles audit trail endpoints.
type AuditHandler struct {
	store  audit.Store
	logger *slog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store audit.Store, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{store: store, logger: logger}
}

// ListAuditLogs handles GET /api/v1/audit.
func (h *AuditHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(h.logger, w, http.StatusNotFound, "not_found_error", "audit trail is disabled")
		return
	}

	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	entries, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to list audit entries")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, map[string]any{
		"data":   entries,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetAuditStats handles GET /api/v1/audit/stats.
func (h *AuditHandler) GetAuditStats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(h.logger, w, http.StatusNotFound, "not_found_error", "audit trail is disabled")
		return
	}

	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	stats, err := h.store.Stats(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to compute audit stats", "error", err)
		writeError(h.logger, w, http.StatusInternalServerError, "internal_error", "failed to compute audit stats")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, stats)
}

func (h *AuditHandler) parseFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	query := r.URL.Query()
	filter := audit.Filter{
		PathPrefix: query.Get("path"),
		Limit:      audit.DefaultLimit,
	}

	if actorID := query.Get("actor_id"); actorID != "" {
		filter.ActorID = &actorID
	}
	if actionStr := query.Get("action"); actionStr != "" {
		action := audit.Action(actionStr)
		filter.Action = &action
	}
	if successStr := query.Get("success"); successStr != "" {
		success, err := strconv.ParseBool(successStr)
		if err != nil {
			writeError(h.logger, w, http.StatusBadRequest, "invalid_request_error", "success must be a boolean")
			return filter, false
		}
		filter.Success = &success
	}

	for name, dst := range map[string]*time.Time{"start_time": &filter.StartTime, "end_time": &filter.EndTime} {
		if v := query.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(h.logger, w, http.StatusBadRequest, "invalid_request_error", name+" must be RFC3339")
				return filter, false
			}
			*dst = t
		}
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := query.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(h.logger, w, http.StatusBadRequest, "invalid_request_error", name+" must be a non-negative integer")
				return filter, false
			}
			*dst = n
		}
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = audit.DefaultLimit
	case filter.Limit > maxAuditLimit:
		filter.Limit = maxAuditLimit
	}
	return filter, true
}
