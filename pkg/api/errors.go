package api

import (
	"errors"
	"net/http"

	"github.com/lib/pq"

	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/httputil"
	"github.com/platinummonkey/baselayer/pkg/models"
	"github.com/platinummonkey/baselayer/pkg/session"
)

// writeDomainError maps domain errors onto the JSON error envelope
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var accessErr *session.AccessError
	var subsetErr *auth.ACLSubsetError
	var pqErr *pq.Error

	switch {
	case errors.As(err, &accessErr):
		httputil.WriteUnauthorized(w, accessErr.Error())
	case errors.Is(err, auth.ErrAuthMissing), errors.Is(err, auth.ErrAuthInvalid):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, auth.ErrAccountInactive):
		httputil.WriteForbidden(w, err.Error())
	case errors.As(err, &subsetErr):
		httputil.WriteForbidden(w, subsetErr.Error())
	case errors.Is(err, models.ErrNotFound):
		httputil.WriteNotFound(w, "not found")
	case errors.As(err, &pqErr) && pqErr.Code.Class() == "23":
		// Integrity violations: unique constraints, foreign keys
		httputil.WriteConflict(w, pqErr.Message)
	default:
		s.logger.WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
