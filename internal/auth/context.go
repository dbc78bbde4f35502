// Package auth gates the secret API behind administrator credentials.
package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ActorContextKey is the context key for the authenticated Actor.
const ActorContextKey contextKey = "actor"

// Actor types.
const (
	ActorBootstrap = "bootstrap"
	ActorUser      = "user"
	ActorAnonymous = "anonymous"
)

// Actor identifies who is calling the API.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
}

// WithActor stores an Actor on the provided context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext retrieves the Actor from ctx. It returns an anonymous
// actor when none is set.
func ActorFromContext(ctx context.Context) *Actor {
	if ctx != nil {
		if actor, ok := ctx.Value(ActorContextKey).(*Actor); ok && actor != nil {
			return actor
		}
	}
	return &Actor{ID: ActorAnonymous, Type: ActorAnonymous}
}
