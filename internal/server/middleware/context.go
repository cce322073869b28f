package middleware

import (
	"context"

	identitydomain "hancock/internal/identity/domain"
)

type contextKey struct{ name string }

var organizationKey = contextKey{"organization"}

// WithOrganization returns a context carrying the organization resolved from the API key.
func WithOrganization(ctx context.Context, org identitydomain.Organization) context.Context {
	return context.WithValue(ctx, organizationKey, org)
}

// GetOrganization returns the organization from context and true if set; otherwise zero, false.
func GetOrganization(ctx context.Context) (identitydomain.Organization, bool) {
	v, ok := ctx.Value(organizationKey).(identitydomain.Organization)
	return v, ok
}
