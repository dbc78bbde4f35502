package auth

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "test-jwt-secret-with-enough-entropy"
	testBootstrap = "bootstrap-token-1234567890"
)

func newTestMiddleware(enabled bool) *Middleware {
	return NewMiddleware(&MiddlewareConfig{
		Enabled:        enabled,
		BootstrapToken: testBootstrap,
		JWTSecret:      testSecret,
		AdminRole:      "admin",
		Logger:         slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		SkipPaths:      []string{"/health/live", "/metrics"},
	})
}

func signed(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func futureClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
}

func TestMiddleware_RequireAdmin(t *testing.T) {
	m := newTestMiddleware(true)

	var seen *Actor
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	adminRole := signed(t, testSecret, &Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	staff := signed(t, testSecret, &Claims{UserID: 42, IsStaff: true, RegisteredClaims: futureClaims()})
	superuser := signed(t, testSecret, &Claims{UserID: 7, IsSuperuser: true, RegisteredClaims: futureClaims()})
	member := signed(t, testSecret, &Claims{UserID: 9, Role: "member", RegisteredClaims: futureClaims()})
	wrongKey := signed(t, "another-secret", &Claims{Role: "admin", RegisteredClaims: futureClaims()})
	expired := signed(t, testSecret, &Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}})

	tests := []struct {
		name           string
		path           string
		headers        map[string]string
		expectedStatus int
		expectedActor  string
	}{
		{"bootstrap token", "/api/v1/secrets", map[string]string{BootstrapTokenHeader: testBootstrap}, http.StatusOK, ActorBootstrap},
		{"wrong bootstrap token", "/api/v1/secrets", map[string]string{BootstrapTokenHeader: "nope"}, http.StatusUnauthorized, ""},
		{"admin role", "/api/v1/secrets", map[string]string{"Authorization": "Bearer " + adminRole}, http.StatusOK, "u-1"},
		{"staff flag", "/api/v1/secrets", map[string]string{"Authorization": "Bearer " + staff}, http.StatusOK, "42"},
		{"superuser flag", "/api/v1/secrets", map[string]string{"Authorization": "Bearer " + superuser}, http.StatusOK, "7"},
		{"non admin", "/api/v1/secrets", map[string]string{"Authorization": "Bearer " + member}, http.StatusForbidden, ""},
		{"wrong signing key", "/api/v1/secrets", map[string]string{"Authorization": "Bearer " + wrongKey}, http.StatusUnauthorized, ""},
		{"expired", "/api/v1/secrets", map[string]string{"Authorization": "Bearer " + expired}, http.StatusUnauthorized, ""},
		{"basic scheme", "/api/v1/secrets", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, http.StatusUnauthorized, ""},
		{"no credentials", "/api/v1/secrets", nil, http.StatusUnauthorized, ""},
		{"skip path", "/health/live", nil, http.StatusOK, ActorAnonymous},
		{"metrics", "/metrics", nil, http.StatusOK, ActorAnonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, tt.expectedActor, seen.ID)
				return
			}
			assert.Nil(t, seen)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestMiddleware_ErrorEnvelope(t *testing.T) {
	m := newTestMiddleware(true)
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	member := signed(t, testSecret, &Claims{Role: "member", RegisteredClaims: futureClaims()})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/secrets", nil)
	req.Header.Set("Authorization", "Bearer "+member)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "permission_error", body.Error.Type)
	assert.NotEmpty(t, body.Error.Message)
}

func TestMiddleware_Disabled(t *testing.T) {
	m := newTestMiddleware(false)

	var seen *Actor
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/secrets", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, ActorAnonymous, seen.Type)
}

func TestMiddleware_NoCredentialsConfigured(t *testing.T) {
	m := NewMiddleware(&MiddlewareConfig{Enabled: true, AdminRole: "admin"})
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// An empty configured bootstrap token never matches, even an empty header.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/secrets", nil)
	req.Header.Set(BootstrapTokenHeader, "anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	tok := signed(t, "whatever", &Claims{Role: "admin", RegisteredClaims: futureClaims()})
	req = httptest.NewRequest(http.MethodGet, "/api/v1/secrets", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddleware_BootstrapMismatchLogsMaskedToken(t *testing.T) {
	var logs bytes.Buffer
	m := NewMiddleware(&MiddlewareConfig{
		Enabled:        true,
		BootstrapToken: testBootstrap,
		AdminRole:      "admin",
		Logger:         slog.New(slog.NewTextHandler(&logs, nil)),
	})
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	presented := "wrong-bootstrap-token-abcdef"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/secrets", nil)
	req.Header.Set(BootstrapTokenHeader, presented)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, logs.String(), "authentication failed")
	assert.Contains(t, logs.String(), MaskKey(presented))
	assert.NotContains(t, logs.String(), presented)
	assert.NotContains(t, rr.Body.String(), presented)
}
