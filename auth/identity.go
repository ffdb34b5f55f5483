// Package auth resolves caller identity for the planner's transports. A
// Verifier turns a bearer token into an Identity; Middleware attaches it to
// the request context, where the orchestrator reads it for ownership checks.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthenticated indicates a request without credentials where they
	// are required.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken indicates credentials that failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the verified caller.
type Identity struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

// Anonymous is the identity of callers without credentials.
func Anonymous() Identity {
	return Identity{Anonymous: true}
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached to ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// UserID returns the caller's user id, or "" for anonymous callers and
// contexts without an identity.
func UserID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}
