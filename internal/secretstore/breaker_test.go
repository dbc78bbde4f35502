package secretstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hishamos/secrets/internal/config"
	"github.com/hishamos/secrets/internal/metrics"
	"github.com/hishamos/secrets/internal/resilience"
	"github.com/hishamos/secrets/internal/secret"
)

type flakyBackend struct {
	calls atomic.Int64
	err   error
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Store(context.Context, string, secret.Payload, secret.Metadata) error {
	f.calls.Add(1)
	return f.err
}

func (f *flakyBackend) Get(context.Context, string) (secret.Payload, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return secret.Payload{"k": "v"}, nil
}

func (f *flakyBackend) Delete(context.Context, string) error {
	f.calls.Add(1)
	return f.err
}

func (f *flakyBackend) List(context.Context, string) ([]string, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *flakyBackend) Close() error { return nil }

func TestGuardedBackend_OpensOnBackendFailures(t *testing.T) {
	inner := &flakyBackend{err: errors.New("connection refused")}
	g := newGuardedBackend(inner, resilience.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := g.Get(ctx, "a")
	require.Error(t, err)
	_, err = g.Get(ctx, "a")
	require.Error(t, err)
	require.Equal(t, int64(2), inner.calls.Load())
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("flaky")))

	err = g.Store(ctx, "a", secret.Payload{"k": "v"}, nil)
	require.ErrorIs(t, err, secret.ErrUnavailable)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int64(2), inner.calls.Load(), "open circuit must not reach the backend")
	assert.Equal(t, http.StatusServiceUnavailable, secret.StatusCode(err))
}

func TestGuardedBackend_NotFoundIsHealthy(t *testing.T) {
	inner := &flakyBackend{err: secret.ErrNotFound}
	g := newGuardedBackend(inner, resilience.CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 5; i++ {
		_, err := g.Get(context.Background(), "missing")
		require.ErrorIs(t, err, secret.ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, g.breaker.State())
	assert.Equal(t, "flaky", g.Name())
}

func TestGuardedBackend_PassesResults(t *testing.T) {
	g := newGuardedBackend(&flakyBackend{}, resilience.DefaultCircuitBreakerConfig(), slog.Default())

	payload, err := g.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, secret.Payload{"k": "v"}, payload)
	require.NoError(t, g.Delete(context.Background(), "a"))
}

func TestOpen_VaultCircuitBreaker(t *testing.T) {
	var dataCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/auth/token/lookup-self" {
			_, _ = io.WriteString(w, `{"data":{"id":"x","renewable":false,"ttl":0}}`)
			return
		}
		dataCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"errors":["internal error"]}`)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Secrets.Vault.Enabled = true
	cfg.Secrets.Vault.Address = srv.URL
	cfg.Secrets.Vault.Token = vaultToken
	cfg.Secrets.Vault.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		Timeout:          time.Hour,
	}

	res := Open(context.Background(), cfg, quietDeps())
	defer res.Service.Close()
	require.Equal(t, secret.BackendVault, res.Service.Backend())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := res.Service.Get(ctx, "db/main")
		require.ErrorIs(t, err, secret.ErrBackend)
	}
	before := dataCalls.Load()

	_, err := res.Service.Get(ctx, "db/main")
	require.ErrorIs(t, err, secret.ErrUnavailable)
	assert.Equal(t, before, dataCalls.Load())
}
