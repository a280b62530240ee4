package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/timetrax/authcore"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal Guard attached to the request.
func PrincipalFromContext(ctx context.Context) (*authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authcore.Principal)
	return p, ok
}

// Option configures Guard.
type Option func(*guardConfig)

type guardConfig struct {
	public func(*http.Request) bool
}

// WithPublicRoutes marks requests the matcher accepts as public: Guard passes
// them through without a token and without a principal in context.
func WithPublicRoutes(matcher func(*http.Request) bool) Option {
	return func(cfg *guardConfig) {
		cfg.public = matcher
	}
}

// Guard authenticates every request through the engine's gateway pipeline
// and attaches the resulting principal to the request context. The client's
// address is stamped into the context first so audit events carry it.
func Guard(engine *authcore.Engine, opts ...Option) func(http.Handler) http.Handler {
	var cfg guardConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authcore.WithSourceAddress(r.Context(), remoteAddress(r))

			if cfg.public != nil && cfg.public(r) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if engine == nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}

			principal, err := engine.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, authcore.ErrStoreUnavailable) {
					http.Error(w, "temporarily unavailable, try again", http.StatusServiceUnavailable)
					return
				}
				// Every other failure collapses into one answer.
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteAddress(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}
