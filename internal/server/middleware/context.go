package middleware

import (
	"context"

	"costing-api/backend/internal/identity/service"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// identityGinKey is the gin context key under which Authenticate stores the
// caller identity.
const identityGinKey = "identity"

// WithIdentity returns a context carrying the authenticated caller identity.
func WithIdentity(ctx context.Context, ident *service.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFrom returns the caller identity from context and true if set.
func IdentityFrom(ctx context.Context) (*service.Identity, bool) {
	v, ok := ctx.Value(identityKey).(*service.Identity)
	return v, ok
}
