package secret

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hishamos/secrets/internal/metrics"
	"github.com/hishamos/secrets/internal/observability"
)

// TracerName is the instrumentation name used for secret operation spans.
const TracerName = "github.com/hishamos/secrets/internal/secret"

// Info describes the backend selection made when the Service was built.
type Info struct {
	Backend         string `json:"backend"`
	VaultEnabled    bool   `json:"vault_enabled"`
	LocalEncryption bool   `json:"local_encryption"`
	EphemeralKey    bool   `json:"ephemeral_key"`
	PathIndex       bool   `json:"path_index"`
	Cached          bool   `json:"cache"`
}

// Service is the secret store façade. It delegates every call to the single
// backend chosen at construction time and never retries or switches backends
// afterwards. A Service without a backend stays callable; every operation
// then fails with ErrUnavailable.
type Service struct {
	backend Backend
	info    Info
	logger  *slog.Logger
	tracer  trace.Tracer

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for operation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithInfo records how the backend was selected.
func WithInfo(info Info) Option {
	return func(s *Service) {
		s.info = info
	}
}

// NewService creates a Service over backend. A nil backend yields a Service
// in the "none" state.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		logger:  slog.Default(),
		tracer:  otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.info.Backend = BackendNone
	if backend != nil {
		s.info.Backend = backend.Name()
	}
	metrics.SetSecretBackend(s.info.Backend)
	return s
}

// Backend returns the active backend name: vault, local or none.
func (s *Service) Backend() string {
	return s.info.Backend
}

// Info returns the backend selection details.
func (s *Service) Info() Info {
	return s.info
}

// Available reports whether a backend is active.
func (s *Service) Available() bool {
	return s.backend != nil
}

// Store creates or overwrites the secret at path.
func (s *Service) Store(ctx context.Context, path string, payload Payload, metadata Metadata) error {
	return s.write(ctx, "store", path, payload, metadata)
}

// Rotate replaces the secret at path with payload. Vault keeps the previous
// version; the local backend overwrites it. The old value is never read.
func (s *Service) Rotate(ctx context.Context, path string, payload Payload) error {
	return s.write(ctx, "rotate", path, payload, nil)
}

func (s *Service) write(ctx context.Context, op, path string, payload Payload, metadata Metadata) error {
	p, err := NormalizePath(path)
	if err != nil {
		return s.finish(ctx, op, path, time.Now(), err)
	}
	if len(payload) == 0 {
		return s.finish(ctx, op, p, time.Now(), ErrInvalidPayload)
	}

	return s.run(ctx, op, p, func(ctx context.Context) error {
		return s.backend.Store(ctx, p, payload, metadata)
	})
}

// Get returns the payload stored at path.
func (s *Service) Get(ctx context.Context, path string) (Payload, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, s.finish(ctx, "get", path, time.Now(), err)
	}

	var payload Payload
	err = s.run(ctx, "get", p, func(ctx context.Context) error {
		var getErr error
		payload, getErr = s.backend.Get(ctx, p)
		if getErr == nil && payload == nil {
			return ErrNotFound
		}
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Delete permanently removes the secret at path. Deleting a missing secret
// succeeds.
func (s *Service) Delete(ctx context.Context, path string) error {
	p, err := NormalizePath(path)
	if err != nil {
		return s.finish(ctx, "delete", path, time.Now(), err)
	}

	return s.run(ctx, "delete", p, func(ctx context.Context) error {
		return s.backend.Delete(ctx, p)
	})
}

// List returns the immediate children under prefix. An empty prefix lists
// the root. The result is never nil on success.
func (s *Service) List(ctx context.Context, prefix string) ([]string, error) {
	p, err := NormalizePrefix(prefix)
	if err != nil {
		return nil, s.finish(ctx, "list", prefix, time.Now(), err)
	}

	var keys []string
	err = s.run(ctx, "list", p, func(ctx context.Context) error {
		var listErr error
		keys, listErr = s.backend.List(ctx, p)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Close releases the active backend. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.backend != nil {
			s.closeErr = s.backend.Close()
		}
	})
	return s.closeErr
}

func (s *Service) run(ctx context.Context, op, path string, fn func(context.Context) error) error {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "secret."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("secret.path", path),
			attribute.String("secret.backend", s.info.Backend),
		),
	)
	defer span.End()

	var err error
	if s.backend == nil {
		err = ErrUnavailable
	} else {
		err = fn(ctx)
	}

	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return s.finish(ctx, op, path, start, err)
}

// finish wraps err into *Error, logs it and records metrics.
func (s *Service) finish(ctx context.Context, op, path string, start time.Time, err error) error {
	result := resultLabel(err)
	metrics.RecordSecretOperation(op, s.info.Backend, result, time.Since(start))
	if err == nil {
		return nil
	}

	var serr *Error
	if !errors.As(err, &serr) {
		serr = &Error{Op: op, Path: path, Backend: s.info.Backend, Kind: kindOf(err)}
		if serr.Kind != err {
			serr.Err = err
		}
	}

	logger := s.logger
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	attrs := []any{"operation", op, "path", path, "backend", s.info.Backend, "error", err}

	switch serr.Kind {
	case ErrNotFound:
		logger.Debug("secret not found", attrs...)
	case ErrInvalidPath, ErrInvalidPayload:
		logger.Warn("secret request rejected", attrs...)
	case ErrUnavailable:
		logger.Error("no secret backend available", attrs...)
	default:
		logger.Error("secret operation failed", attrs...)
	}
	return serr
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidPayload):
		return "invalid"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
