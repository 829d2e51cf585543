package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-sqlfilter/internal/filterset"
)

func TestFilterScopeMiddleware(t *testing.T) {
	var scopes []filterset.RequestScope
	handler := FilterScopeMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := filterset.ScopeFromContext(r.Context())
		require.True(t, ok)
		scopes = append(scopes, scope)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))
	}

	require.Len(t, scopes, 2)
	assert.NotSame(t, scopes[0], scopes[1])
}
