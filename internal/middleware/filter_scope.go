package middleware

import (
	"net/http"

	"graphql-sqlfilter/internal/filterset"
)

// FilterScopeMiddleware gives every request a fresh filterset.Scope, so
// relationship aliases and nested connection loaders never outlive the
// request that created them.
func FilterScopeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := filterset.WithRequestScope(r.Context(), filterset.NewScope())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
