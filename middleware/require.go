package middleware

import (
	"errors"
	"net/http"

	authcore "github.com/timetrax/authcore"
	"github.com/timetrax/authcore/permission"
)

// Require enforces a single (resource, action) permission on every request.
// It must run inside Guard: a request without a principal in context is
// rejected as unauthenticated.
func Require(engine *authcore.Engine, resource permission.Resource, action permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			if engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			decision, err := engine.Authorize(r.Context(), principal, resource, action)
			if err != nil && errors.Is(err, authcore.ErrStoreUnavailable) {
				http.Error(w, "temporarily unavailable, try again", http.StatusServiceUnavailable)
				return
			}
			if !decision.Allowed {
				http.Error(w, "forbidden: "+decision.Reason, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
