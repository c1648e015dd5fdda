package auth

import (
	"context"
	"strings"
)

// Identity captures the authenticated principal details extracted from an access token.
type Identity struct {
	UID   string
	Email string
	Role  string

	accessToken string
	claims      *TokenClaims
}

// AccessToken exposes the raw bearer token, used when calling the identity
// provider on the caller's behalf.
func (i *Identity) AccessToken() string {
	if i == nil {
		return ""
	}
	return i.accessToken
}

// Claims exposes the decoded token claims associated with this identity.
func (i *Identity) Claims() *TokenClaims {
	if i == nil {
		return nil
	}
	return i.claims
}

// HasRole reports whether the identity carries the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	return strings.EqualFold(i.Role, role)
}

type contextKey string

const identityContextKey contextKey = "github.com/optima-bank/loyalty/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
