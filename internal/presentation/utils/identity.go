package utils

import (
	"context"

	"github.com/hilthontt/chorus/internal/domain"
)

type identityKey struct{}

// ErrNoIdentity is returned to requests that reached a handler without
// passing the auth middleware.
var ErrNoIdentity = &domain.AuthenticationError{Reason: "missing credentials"}

// WithIdentity attaches the verified caller to ctx.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	return identity, ok && identity.UserID != ""
}
