// Package orgcontext carries the acting principal and the tenant owner it
// works for through request contexts.
package orgcontext

import (
	"context"
	"strings"

	"github.com/fauter/cochera-admin/internal/role"
)

type principalKey struct{}

// WithPrincipal stores the acting principal in the context.
func WithPrincipal(ctx context.Context, p role.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the acting principal, if set.
func PrincipalFromContext(ctx context.Context) (role.Principal, bool) {
	if ctx == nil {
		return role.Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(role.Principal)
	if !ok || strings.TrimSpace(p.ID) == "" {
		return role.Principal{}, false
	}
	return p, true
}

// OwnerIDFromContext returns the owner whose garages the principal operates.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	owner := strings.TrimSpace(p.TenantOwnerID())
	return owner, owner != ""
}
