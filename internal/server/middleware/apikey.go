package middleware

import (
	"net/http"
	"strings"

	"hancock/internal/identity/service"
)

// APIKeyHeader carries the caller's API key on the creation endpoint.
const APIKeyHeader = "X-Api-Key"

// RequireAPIKey resolves the X-Api-Key header to an organization and stores it in the
// request context. Missing or unknown keys are passed to reject, which writes the response.
func RequireAPIKey(resolver service.KeyResolver, reject func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			org, err := resolver.Resolve(r.Context(), key)
			if err != nil {
				reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOrganization(r.Context(), org)))
		})
	}
}
