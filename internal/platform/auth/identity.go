package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles recognised by the API's authorisation checks.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the authenticated principal extracted from a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []string

	token *firebaseauth.Token
}

// Token returns the decoded Firebase ID token backing this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole reports whether the identity carries the given role. Matching is
// case-insensitive.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, held := range i.Roles {
		if normaliseRole(held) == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of the roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the identity may act on any customer's orders.
func (i *Identity) IsStaff() bool {
	return i.HasAnyRole(RoleStaff, RoleAdmin)
}

type contextKey string

const identityContextKey contextKey = "github.com/orchidmarket/api/internal/platform/auth/identity"

// WithIdentity stores the identity in ctx for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok && identity != nil
}
