package auth

import (
	"context"
)

// Identity is the authenticated caller of a registry request. Roles carry the
// registry role names (viewer, operator, admin) extracted from the token.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

// IdentityFromContext returns the identity the middleware attached, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
