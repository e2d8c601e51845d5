package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// Middleware authenticates bearer tokens and stores the principal in the
// request context.
type Middleware struct {
	Service *Service
}

// RequireAuth rejects requests without a valid bearer token.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httpx.RespondError(w, fmt.Errorf("identity: missing bearer token: %w", httpx.ErrUnauthorized))
			return
		}
		principal, err := m.Service.Authenticate(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}
