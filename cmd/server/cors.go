package main

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hishamos/secrets/internal/auth"
	"github.com/hishamos/secrets/internal/config"
)

// corsMiddleware lets the HishamOS admin console call the secrets API from a
// browser. Origins outside the allowlist, or on the denylist, get a 403 in the
// same error envelope the admin gate uses. The bootstrap token header is
// accepted on requests but never exposed to scripts.
func corsMiddleware(cfg config.CORSConfig, next http.Handler) http.Handler {
	if !cfg.Enabled {
		return next
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(exposableHeaders(cfg.ExposeHeaders), ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !originAllowed(origin, cfg) {
			writeOriginRejected(w)
			return
		}

		// A credentialed response cannot use the wildcard origin.
		allowOrigin := origin
		if cfg.AllowAllOrigins && !cfg.AllowCredentials {
			allowOrigin = "*"
		} else {
			w.Header().Add("Vary", "Origin")
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if allowMethods != "" {
			h.Set("Access-Control-Allow-Methods", allowMethods)
		}
		if allowHeaders != "" {
			h.Set("Access-Control-Allow-Headers", allowHeaders)
		}
		if exposeHeaders != "" {
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
		}
		if cfg.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.FormatInt(int64(cfg.MaxAge.Seconds()), 10))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, cfg config.CORSConfig) bool {
	if slices.Contains(cfg.DeniedOrigins, "*") || slices.Contains(cfg.DeniedOrigins, origin) {
		return false
	}
	if cfg.AllowAllOrigins {
		return true
	}
	return slices.Contains(cfg.AllowedOrigins, origin)
}

// exposableHeaders drops the bootstrap token header from the expose list.
func exposableHeaders(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), auth.BootstrapTokenHeader) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func writeOriginRejected(w http.ResponseWriter) {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{
			"message": "origin not allowed",
			"type":    "permission_error",
		},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write(body)
}
