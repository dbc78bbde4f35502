// Package ref resolves secret references in configuration. A reference is
// either a literal value or "scheme://rest", routed to the provider
// registered for scheme (env://NAME, file:///path/to/file).
package ref

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Provider returns the value addressed by path within its scheme.
type Provider interface {
	Get(ctx context.Context, path string) (string, error)
}

// Resolver routes references to providers by URI scheme.
type Resolver struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewResolver creates a resolver with no providers.
func NewResolver() *Resolver {
	return &Resolver{
		providers: make(map[string]Provider),
	}
}

// NewDefaultResolver creates a resolver with the env and file providers.
func NewDefaultResolver() *Resolver {
	r := NewResolver()
	r.Register("env", EnvProvider{})
	r.Register("file", FileProvider{})
	return r
}

// Register registers a provider for a specific scheme (e.g., "env").
func (r *Resolver) Register(scheme string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[scheme] = provider
}

// Resolve returns the value of ref. A string without a scheme is returned
// as-is.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, path, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	r.mu.RLock()
	provider, found := r.providers[scheme]
	r.mu.RUnlock()

	if !found {
		return "", fmt.Errorf("no secret provider registered for scheme: %s", scheme)
	}
	return provider.Get(ctx, path)
}

// ResolveAll resolves every ref, skipping empty entries.
func (r *Resolver) ResolveAll(ctx context.Context, refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for i, ref := range refs {
		if ref == "" {
			continue
		}
		v, err := r.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EnvProvider reads environment variables.
type EnvProvider struct{}

// Get returns the value of the environment variable named path.
func (EnvProvider) Get(_ context.Context, path string) (string, error) {
	val, ok := os.LookupEnv(path)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", path)
	}
	return val, nil
}

// FileProvider reads files, e.g. mounted Kubernetes secrets. Trailing
// newlines are stripped.
type FileProvider struct{}

// Get returns the contents of the file at path.
func (FileProvider) Get(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
