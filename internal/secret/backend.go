// Package secret provides the secret storage contract: the Backend interface
// implemented by the vault and local-encryption backends, the Service façade
// that dispatches to exactly one active backend, and typed errors.
package secret

import (
	"context"
)

// Backend names reported by Service.Backend.
const (
	BackendVault = "vault"
	BackendLocal = "local"
	BackendNone  = "none"
)

// Payload is a named bundle of key-value pairs. Values are strings, numbers,
// booleans or nested JSON-serializable structures.
type Payload map[string]any

// Metadata carries optional descriptive attributes stored alongside a secret
// by backends that support it.
type Metadata map[string]string

// Backend defines the interface implemented by every secret storage backend.
type Backend interface {
	// Name returns the backend name (BackendVault, BackendLocal).
	Name() string

	// Store creates or overwrites the secret at path.
	Store(ctx context.Context, path string, payload Payload, metadata Metadata) error

	// Get returns the latest payload stored at path.
	// Returns ErrNotFound if nothing is stored there.
	Get(ctx context.Context, path string) (Payload, error)

	// Delete permanently removes the secret at path. Deleting a missing
	// secret is not an error.
	Delete(ctx context.Context, path string) error

	// List returns the immediate children under prefix. Directory entries
	// carry a trailing "/".
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the payload field names, without values, for logging.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}
