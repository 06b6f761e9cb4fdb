package auth

import (
	"encoding/json"
	"net/http"
)

// HTTPMiddleware resolves a bearer token when one is sent and stores the principal
// in the request context. Requests without an Authorization header pass through
// anonymously; a header that fails to resolve is rejected with 401.
func HTTPMiddleware(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			tok, err := BearerToken(header)
			if err == nil {
				p, rerr := resolver.ResolvePrincipal(r.Context(), tok)
				if rerr == nil {
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
					return
				}
				err = rerr
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "auth error: " + err.Error()})
		})
	}
}
