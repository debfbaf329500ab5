package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/baselayer/pkg/access"
)

type contextKey string

const principalKey contextKey = "principal"

// withPrincipal stores the resolved principal on the request context
func withPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the request's principal, nil when unresolved
func PrincipalFromContext(ctx context.Context) access.Principal {
	p, _ := ctx.Value(principalKey).(access.Principal)
	return p
}

// authenticated resolves the principal before running the handler and maps
// resolution failures to their HTTP statuses
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.authenticator.FromRequest(r.Context(), r)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		next(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}
