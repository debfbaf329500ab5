package api

import (
	"net/http"

	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/httputil"
	"github.com/platinummonkey/baselayer/pkg/models"
)

// handleSocketAuthToken issues a short-lived websocket-auth token. Only
// browser sessions use the websocket plane, so the principal must be a
// user resolved from the signed cookies.
func (s *Server) handleSocketAuthToken(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if _, ok := principal.(*models.User); !ok {
		httputil.WriteUnauthorized(w, "a browser session is required to obtain a socket token")
		return
	}

	token, err := auth.IssueSocketToken(s.secret, principal.EffectiveUserID())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"token": token})
}

// handleProfile describes the requesting principal
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	profile := map[string]interface{}{
		"kind":    principal.Kind(),
		"ident":   principal.Ident(),
		"user_id": principal.EffectiveUserID(),
		"admin":   principal.IsAdmin(),
	}
	switch p := principal.(type) {
	case *models.User:
		profile["permissions"] = p.Permissions()
	case *models.Token:
		profile["permissions"] = p.Permissions()
	}
	httputil.WriteSuccess(w, profile)
}
