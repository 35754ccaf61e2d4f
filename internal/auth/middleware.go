package auth

import (
	"net/http"
	"strings"

	pkghttp "github.com/khayashi/engawa/pkg/http"
)

// RequireServiceToken rejects requests that do not carry a valid bearer
// token with the required scope.
func RequireServiceToken(tm *ServiceTokenManager, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				pkghttp.WriteUnauthorized(w, "missing bearer token")
				return
			}

			if _, err := tm.Validate(token, scope); err != nil {
				pkghttp.WriteUnauthorized(w, "invalid service token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
