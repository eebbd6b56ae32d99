package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
)

type principalKey struct{}

// Principal is the API key a request was authenticated with.
type Principal struct {
	TenantID  uuid.UUID
	KeyID     uuid.UUID
	KeyPrefix string
	KeyName   string
	Scopes    []string
}

// HasScope reports whether the key carries scope.
func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal set by Authenticate.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || p.TenantID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.TenantID, true
}

// GetKeyName returns the authenticating key's name. Handlers use it as the
// job creator when the request does not name one.
func GetKeyName(r *http.Request) (string, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || p.KeyName == "" {
		return "", false
	}
	return p.KeyName, true
}
