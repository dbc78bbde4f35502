package secretstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hishamos/secrets/internal/metrics"
	"github.com/hishamos/secrets/internal/resilience"
	"github.com/hishamos/secrets/internal/secret"
)

// guardedBackend short-circuits calls to a remote backend after repeated
// failures. A rejected call fails with secret.ErrUnavailable.
type guardedBackend struct {
	secret.Backend
	breaker *resilience.CircuitBreaker
}

func newGuardedBackend(backend secret.Backend, cfg resilience.CircuitBreakerConfig, logger *slog.Logger) *guardedBackend {
	name := backend.Name()
	breaker := resilience.NewCircuitBreaker(name, cfg)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		metrics.SetCircuitBreakerState(name, int(to))
		logger.Warn("secret backend circuit breaker changed state",
			"backend", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	metrics.SetCircuitBreakerState(name, int(resilience.StateClosed))
	return &guardedBackend{Backend: backend, breaker: breaker}
}

// countsAsFailure reports whether err says something about backend health.
// Caller mistakes and missing secrets do not.
func countsAsFailure(err error) bool {
	switch {
	case errors.Is(err, secret.ErrNotFound),
		errors.Is(err, secret.ErrInvalidPath),
		errors.Is(err, secret.ErrInvalidPayload),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

func (g *guardedBackend) do(fn func() error) error {
	err := g.breaker.Do(fn, countsAsFailure)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", secret.ErrUnavailable, err)
	}
	return err
}

func (g *guardedBackend) Store(ctx context.Context, path string, payload secret.Payload, metadata secret.Metadata) error {
	return g.do(func() error {
		return g.Backend.Store(ctx, path, payload, metadata)
	})
}

func (g *guardedBackend) Get(ctx context.Context, path string) (secret.Payload, error) {
	var payload secret.Payload
	err := g.do(func() error {
		var err error
		payload, err = g.Backend.Get(ctx, path)
		return err
	})
	return payload, err
}

func (g *guardedBackend) Delete(ctx context.Context, path string) error {
	return g.do(func() error {
		return g.Backend.Delete(ctx, path)
	})
}

func (g *guardedBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.do(func() error {
		var err error
		keys, err = g.Backend.List(ctx, prefix)
		return err
	})
	return keys, err
}
