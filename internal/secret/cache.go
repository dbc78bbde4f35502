package secret

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedBackend decorates a Backend with an in-memory read-through cache.
// Writes and deletes through the decorator invalidate the cached path.
// Writes made by other processes are only seen after the TTL expires.
type CachedBackend struct {
	inner Backend
	cache *cache.Cache

	// generations counts writes per path. A read only populates the cache
	// when no write to its path started or finished while it was in flight.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedBackend creates a new cached backend.
// defaultTTL is the expiration time for cached payloads.
func NewCachedBackend(inner Backend, defaultTTL time.Duration) *CachedBackend {
	return &CachedBackend{
		inner:       inner,
		cache:       cache.New(defaultTTL, defaultTTL*2),
		generations: make(map[string]uint64),
	}
}

// Name returns the name of the wrapped backend.
func (b *CachedBackend) Name() string {
	return b.inner.Name()
}

// Store writes through to the inner backend and drops the cached entry.
func (b *CachedBackend) Store(ctx context.Context, path string, payload Payload, metadata Metadata) error {
	b.invalidate(path)
	err := b.inner.Store(ctx, path, payload, metadata)
	b.invalidate(path)
	return err
}

// Get retrieves a payload from the cache or delegates to the inner backend.
func (b *CachedBackend) Get(ctx context.Context, path string) (Payload, error) {
	if val, found := b.cache.Get(path); found {
		if p, ok := val.(Payload); ok {
			return p.Clone(), nil
		}
	}

	gen := b.generation(path)
	p, err := b.inner.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.generations[path] == gen {
		b.cache.Set(path, p.Clone(), cache.DefaultExpiration)
	}
	b.mu.Unlock()
	return p, nil
}

// Delete removes the secret from the inner backend and the cache.
func (b *CachedBackend) Delete(ctx context.Context, path string) error {
	b.invalidate(path)
	err := b.inner.Delete(ctx, path)
	b.invalidate(path)
	return err
}

func (b *CachedBackend) generation(path string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generations[path]
}

// invalidate drops the cached entry and bumps the path's generation so that
// reads started before the write cannot repopulate it.
func (b *CachedBackend) invalidate(path string) {
	b.mu.Lock()
	b.generations[path]++
	b.cache.Delete(path)
	b.mu.Unlock()
}

// List is never cached.
func (b *CachedBackend) List(ctx context.Context, prefix string) ([]string, error) {
	return b.inner.List(ctx, prefix)
}

// Close flushes the cache and closes the inner backend.
func (b *CachedBackend) Close() error {
	b.mu.Lock()
	b.cache.Flush()
	b.mu.Unlock()
	return b.inner.Close()
}

var _ Backend = (*CachedBackend)(nil)
