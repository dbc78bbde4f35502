package api //nolint:revive // package name is intentional

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hishamos/secrets/internal/httputil"
	"github.com/hishamos/secrets/internal/secret"
)

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, status int, errType, message string) {
	writeJSON(logger, w, status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}

// writeSecretError maps a secret operation error onto the envelope. The
// message never includes backend detail for 5xx responses.
func writeSecretError(logger *slog.Logger, w http.ResponseWriter, err error) {
	status := secret.StatusCode(err)
	message := err.Error()
	switch {
	case errors.Is(err, secret.ErrNotFound):
		message = "secret not found"
	case errors.Is(err, secret.ErrUnavailable):
		message = "no secret backend available"
	case status >= http.StatusInternalServerError:
		message = "secret backend failure"
	}
	writeError(logger, w, status, secret.TypeOf(err), message)
}

// writeBodyError reports a request body that could not be decoded.
func writeBodyError(logger *slog.Logger, w http.ResponseWriter, err error) {
	if errors.Is(err, httputil.ErrBodyTooLarge) {
		writeError(logger, w, http.StatusRequestEntityTooLarge, secret.TypeInvalidRequest, "request body too large")
		return
	}
	writeError(logger, w, http.StatusBadRequest, secret.TypeInvalidRequest, err.Error())
}
