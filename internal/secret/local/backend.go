// Package local implements the local encryption secret backend: payloads are
// encrypted field by field with Fernet and persisted in a kv.Store under
// "secret:{path}" without expiry.
package local

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hishamos/secrets/internal/kv"
	"github.com/hishamos/secrets/internal/observability"
	"github.com/hishamos/secrets/internal/secret"
)

const (
	// KeyPrefix prefixes every persisted secret blob.
	KeyPrefix = "secret:"

	// IndexKey is the set holding every stored path when the index is on.
	IndexKey = "secret:index"
)

// Backend implements secret.Backend on a kv.Store.
type Backend struct {
	store     kv.Store
	codec     *Codec
	pathIndex bool
	tracer    trace.Tracer
}

// Option configures a Backend.
type Option func(*Backend)

// WithPathIndex maintains IndexKey on store and delete so List can
// enumerate paths. Without it List always returns an empty result.
func WithPathIndex(enabled bool) Option {
	return func(b *Backend) {
		b.pathIndex = enabled
	}
}

// WithTracer sets the tracer used for kv spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Backend) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// New creates a local backend persisting into store.
func New(store kv.Store, codec *Codec, opts ...Option) *Backend {
	b := &Backend{
		store:  store,
		codec:  codec,
		tracer: otel.Tracer(observability.TracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns secret.BackendLocal.
func (b *Backend) Name() string {
	return secret.BackendLocal
}

// PathIndex reports whether the path index is maintained.
func (b *Backend) PathIndex() bool {
	return b.pathIndex
}

// Store encrypts payload and overwrites the blob at path. Metadata is not
// persisted by this backend.
func (b *Backend) Store(ctx context.Context, path string, payload secret.Payload, _ secret.Metadata) error {
	blob, err := b.codec.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", secret.ErrInvalidPayload, err)
	}

	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "kv", "set")
	defer span.End()

	if err := b.store.Set(ctx, KeyPrefix+path, blob); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("persist %s: %w", path, err)
	}
	if b.pathIndex {
		if err := b.store.SetAdd(ctx, IndexKey, path); err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("index %s: %w", path, err)
		}
	}
	return nil
}

// Get fetches and decrypts the blob at path.
func (b *Backend) Get(ctx context.Context, path string) (secret.Payload, error) {
	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "kv", "get")
	defer span.End()

	raw, err := b.store.Get(ctx, KeyPrefix+path)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	if raw == nil {
		return nil, secret.ErrNotFound
	}
	return secret.Payload(b.codec.DecodePayload(raw)), nil
}

// Delete removes the blob at path.
func (b *Backend) Delete(ctx context.Context, path string) error {
	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "kv", "delete")
	defer span.End()

	if err := b.store.Delete(ctx, KeyPrefix+path); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if b.pathIndex {
		if err := b.store.SetRemove(ctx, IndexKey, path); err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("unindex %s: %w", path, err)
		}
	}
	return nil
}

// List returns the immediate children of prefix from the path index.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if !b.pathIndex {
		return []string{}, nil
	}

	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "kv", "smembers")
	defer span.End()

	paths, err := b.store.SetMembers(ctx, IndexKey)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("read path index: %w", err)
	}
	return secret.ChildKeys(paths, prefix), nil
}

// Close closes the underlying store.
func (b *Backend) Close() error {
	return b.store.Close()
}

var _ secret.Backend = (*Backend)(nil)
