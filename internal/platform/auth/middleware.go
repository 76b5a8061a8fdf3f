package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	defaultRoleClaim     = "role"
	defaultEmailClaim    = "email"
	defaultFallbackRole  = RoleUser
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns Firebase token verification into route middleware.
type Authenticator struct {
	verifier TokenVerifier

	roleClaim  string
	emailClaim string

	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithFallbackRole sets the role assumed when the token carries no role claim.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		roleClaim:    defaultRoleClaim,
		emailClaim:   defaultEmailClaim,
		fallbackRole: defaultFallbackRole,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the Authorization bearer token and, when roles
// are given, rejects identities holding none of them.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx := r.Context()
			if a.timeout > 0 {
				var cancel context.CancelFunc
				verifyCtx, cancel = context.WithTimeout(verifyCtx, a.timeout)
				defer cancel()
			}

			token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			identity := &Identity{
				UID:   token.UID,
				Email: claimAsString(token.Claims, a.emailClaim),
				Roles: rolesFromClaims(token.Claims, a.roleClaim),
				token: token,
			}
			if identity.Email == "" {
				identity.Email = claimAsString(token.Claims, defaultEmailClaim)
			}
			if len(identity.Roles) == 0 && a.fallbackRole != "" {
				identity.Roles = []string{a.fallbackRole}
			}

			if len(identity.Roles) == 0 {
				respondAuthError(w, http.StatusUnauthorized, "missing_role", "no roles associated with identity")
				return
			}
			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

// rolesFromClaims accepts the claim shapes Firebase custom claims show up in:
// a single string, a string list, or a role->bool grant map.
func rolesFromClaims(claims map[string]any, key string) []string {
	switch v := claims[key].(type) {
	case string:
		return appendRole(nil, nil, v)
	case []any:
		var out []string
		seen := make(map[string]struct{}, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = appendRole(out, seen, str)
			}
		}
		return out
	case []string:
		var out []string
		seen := make(map[string]struct{}, len(v))
		for _, item := range v {
			out = appendRole(out, seen, item)
		}
		return out
	case map[string]any:
		var out []string
		for name, value := range v {
			if granted, ok := value.(bool); ok && granted {
				out = appendRole(out, nil, name)
			}
		}
		return out
	default:
		return nil
	}
}

func appendRole(roles []string, seen map[string]struct{}, raw string) []string {
	role := normaliseRole(raw)
	if role == "" {
		return roles
	}
	if seen != nil {
		if _, dup := seen[role]; dup {
			return roles
		}
		seen[role] = struct{}{}
	}
	return append(roles, role)
}

func claimAsString(claims map[string]any, key string) string {
	if str, ok := claims[key].(string); ok {
		return strings.TrimSpace(str)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
	}
}
