// Package auth issues and verifies access tokens and hashes passwords.
package auth

import (
	"context"
	"net/http"
	"strings"

	"captain-dispatch/internal/domain"
)

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role domain.Role
}

// Is reports whether the principal has one of roles.
func (p Principal) Is(roles ...domain.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalCtxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

// TokenFromRequest reads a bearer token, falling back to the "token" query
// parameter used by websocket clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
