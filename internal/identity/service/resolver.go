// Package service resolves API keys presented by callers to organizations.
package service

import (
	"context"
	"crypto/subtle"
	"strings"

	identitydomain "hancock/internal/identity/domain"
	"hancock/internal/security"
	sessiondomain "hancock/internal/session/domain"
)

// KeyResolver maps an API key to the organization that owns it.
// It returns sessiondomain.ErrUnauthorized for missing or unknown keys.
type KeyResolver interface {
	Resolve(ctx context.Context, apiKey string) (identitydomain.Organization, error)
}

// StaticResolver checks keys against a fixed, configured list.
type StaticResolver struct {
	keys   []identitydomain.APIKey
	hasher *security.Hasher
}

// NewStaticResolver builds a resolver from organization/secret pairs. Secrets
// that look like bcrypt hashes are verified with bcrypt; others by constant-time compare.
func NewStaticResolver(pairs map[string]string) *StaticResolver {
	r := &StaticResolver{hasher: security.NewHasher(0)}
	for org, secret := range pairs {
		r.Add(org, secret)
	}
	return r
}

// Add registers one more key.
func (r *StaticResolver) Add(org, secret string) {
	kind := identitydomain.KeyKindPlain
	if security.IsBcryptHash(secret) {
		kind = identitydomain.KeyKindBcrypt
	}
	r.keys = append(r.keys, identitydomain.APIKey{
		Organization: identitydomain.Organization{Name: org},
		Kind:         kind,
		Secret:       secret,
	})
}

// Len returns the number of configured keys.
func (r *StaticResolver) Len() int { return len(r.keys) }

// Resolve returns the organization owning apiKey. Every configured key is
// checked so the time taken does not reveal which entry matched.
func (r *StaticResolver) Resolve(ctx context.Context, apiKey string) (identitydomain.Organization, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return identitydomain.Organization{}, sessiondomain.ErrUnauthorized
	}
	var (
		found identitydomain.Organization
		ok    bool
	)
	for _, k := range r.keys {
		var match bool
		switch k.Kind {
		case identitydomain.KeyKindBcrypt:
			match = r.hasher.Compare(k.Secret, []byte(apiKey)) == nil
		default:
			match = subtle.ConstantTimeCompare([]byte(k.Secret), []byte(apiKey)) == 1
		}
		if match && !ok {
			found, ok = k.Organization, true
		}
	}
	if !ok {
		return identitydomain.Organization{}, sessiondomain.ErrUnauthorized
	}
	return found, nil
}
