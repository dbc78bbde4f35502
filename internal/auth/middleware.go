package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hishamos/secrets/internal/observability"
)

// BootstrapTokenHeader carries the deployment bootstrap token.
const BootstrapTokenHeader = "X-HishamOS-Bootstrap-Token" // #nosec G101 -- header name, not a credential.

// Middleware provides HTTP middleware that admits administrators only.
type Middleware struct {
	bootstrapToken string
	verifier       *TokenVerifier
	adminRole      string
	logger         *slog.Logger
	skipPaths      map[string]bool
	enabled        bool
}

// MiddlewareConfig contains configuration for the admin middleware.
type MiddlewareConfig struct {
	Enabled        bool
	BootstrapToken string
	JWTSecret      string
	JWTIssuer      string
	AdminRole      string
	Logger         *slog.Logger
	SkipPaths      []string // Paths to skip authentication (e.g., /health/live, /metrics)
}

// NewMiddleware creates a new admin middleware.
func NewMiddleware(cfg *MiddlewareConfig) *Middleware {
	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Middleware{
		bootstrapToken: cfg.BootstrapToken,
		verifier:       NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		adminRole:      cfg.AdminRole,
		logger:         logger,
		skipPaths:      skipPaths,
		enabled:        cfg.Enabled,
	}
}

// RequireAdmin returns an HTTP middleware that rejects non-administrators.
// Missing or invalid credentials yield 401; a valid non-admin token yields 403.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !m.enabled {
			ctx := WithActor(r.Context(), &Actor{ID: ActorAnonymous, Type: ActorAnonymous})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		actor, err := m.authenticate(r)
		if err != nil {
			logger := observability.WithRequestID(r.Context(), m.logger)
			if errors.Is(err, ErrNotAdmin) {
				logger.Warn("admin access denied", "path", r.URL.Path, "actor", actor.ID)
				m.writeError(w, http.StatusForbidden, "permission_error", "administrator access required")
				return
			}
			logger.Info("authentication failed", "path", r.URL.Path, "error", err)
			m.writeError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (*Actor, error) {
	if presented := r.Header.Get(BootstrapTokenHeader); presented != "" {
		if !VerifyKey(presented, m.bootstrapToken) {
			return nil, fmt.Errorf("invalid bootstrap token %s", MaskKey(presented))
		}
		return &Actor{ID: ActorBootstrap, Type: ActorBootstrap}, nil
	}

	token, err := ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	claims, err := m.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	actor := &Actor{ID: claims.ActorID(), Type: ActorUser, Role: claims.Role}
	if !claims.IsAdmin(m.adminRole) {
		return actor, ErrNotAdmin
	}
	return actor, nil
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSONError(w, status, errType, message)
}

func writeJSONError(w http.ResponseWriter, status int, errType, message string) {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    errType,
		},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
