package main

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/hishamos/secrets/internal/auth"
	"github.com/hishamos/secrets/internal/config"
	"github.com/hishamos/secrets/internal/metrics"
	"github.com/hishamos/secrets/internal/observability"
)

// credentials are the resolved admin gate secrets.
type credentials struct {
	BootstrapToken string
	JWTSecret      string
}

// ungatedPaths are served without authentication or rate limiting.
func ungatedPaths(cfg *config.Config) []string {
	paths := []string{"/health/live", "/health/ready"}
	if cfg.Metrics.Enabled {
		paths = append(paths, cfg.Metrics.Path)
	}
	return paths
}

// buildMiddlewareStack wraps the mux, outermost first: CORS, request ID,
// tracing, metrics, rate limiting, admin gate. A nil limiter disables rate
// limiting.
func buildMiddlewareStack(cfg *config.Config, creds credentials, limiter *auth.RateLimiter, tracer trace.Tracer, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	skipPaths := ungatedPaths(cfg)

	adminGate := auth.NewMiddleware(&auth.MiddlewareConfig{
		Enabled:        cfg.Auth.Enabled,
		BootstrapToken: creds.BootstrapToken,
		JWTSecret:      creds.JWTSecret,
		JWTIssuer:      cfg.Auth.JWTIssuer,
		AdminRole:      cfg.Auth.AdminRole,
		Logger:         logger,
		SkipPaths:      skipPaths,
	})
	if cfg.Auth.Enabled {
		logger.Info("admin authentication enabled",
			"bootstrap_token", creds.BootstrapToken != "",
			"jwt", creds.JWTSecret != "",
		)
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			return nil
		}
		handler := adminGate.RequireAdmin(next)
		if limiter != nil {
			handler = limiter.Middleware(handler)
		}
		handler = metrics.Middleware(handler)
		if tracer != nil {
			handler = observability.TracingMiddleware(tracer)(handler)
		}
		handler = observability.RequestIDMiddleware(handler)
		handler = corsMiddleware(cfg.CORS, handler)
		return handler
	}, nil
}
