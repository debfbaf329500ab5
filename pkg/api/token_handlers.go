package api

import (
	"net/http"

	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/httputil"
	"github.com/platinummonkey/baselayer/pkg/models"
)

type createTokenRequest struct {
	Name string   `json:"name"`
	ACLs []string `json:"acls"`
}

type tokenResponse struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	CreatedBy int64    `json:"created_by_id"`
	ACLs      []string `json:"acls,omitempty"`
}

// handleCreateToken issues a new API token for the requesting principal's
// user. The delegated ACLs must be a subset of that user's permissions;
// the opaque credential is returned exactly once, in this response.
func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "token name is required")
		return
	}

	creatorPerms, err := s.creatorPermissions(r, principal.EffectiveUserID())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := auth.ValidateDelegatedACLs(req.ACLs, creatorPerms); err != nil {
		s.writeDomainError(w, err)
		return
	}

	sess, err := s.mgr.Begin(r.Context(), principal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer sess.Close()

	// The credential is generated here so the grant rows can reference it
	// before any row is flushed
	token := &models.Token{
		ID:          models.NewTokenID(),
		Name:        req.Name,
		CreatedByID: principal.EffectiveUserID(),
	}
	sess.Create(token)
	for _, acl := range req.ACLs {
		sess.Create(&models.TokenACL{TokenID: token.ID, ACLID: acl})
	}

	if err := sess.Commit(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if s.publisher != nil {
		s.publisher.Push(principal.EffectiveUserID(), "TOKEN CREATED", map[string]string{"name": token.Name})
	}
	httputil.WriteSuccessStatus(w, http.StatusCreated, tokenResponse{
		ID:        token.ID,
		Name:      token.Name,
		CreatedBy: token.CreatedByID,
		ACLs:      req.ACLs,
	})
}

// creatorPermissions resolves the issuing user's permission set. A token
// principal delegates from its creator, and the subset rule binds against
// the creator's full set, not the token's narrowed one.
func (s *Server) creatorPermissions(r *http.Request, userID int64) ([]string, error) {
	raw, err := s.mgr.BeginUnverified(r.Context())
	if err != nil {
		return nil, err
	}
	defer raw.Close()

	perms, err := models.NewStore(raw.Tx()).UserPermissions(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if err := raw.Commit(); err != nil {
		return nil, err
	}
	return perms, nil
}

// handleListTokens lists the tokens the principal may read
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	sess, err := s.mgr.Begin(r.Context(), principal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer sess.Close()

	store := models.NewStore(sess.Tx())
	tokens, err := store.ListAccessibleTokens(r.Context(), s.mgr.Registry(), principal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		// Listings never echo the opaque credential
		out = append(out, tokenResponse{Name: t.Name, CreatedBy: t.CreatedByID})
	}
	httputil.WriteSuccess(w, out)
}

// handleRevokeToken deletes a token. The delete policy admits the creator
// and admins; the grant rows cascade.
func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	id, err := httputil.PathVar(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	sess, err := s.mgr.Begin(r.Context(), principal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer sess.Close()

	store := models.NewStore(sess.Tx())
	token, err := store.GetToken(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	sess.Delete(token)

	if err := sess.Commit(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.authenticator.InvalidateToken(token.ID)
	if s.publisher != nil {
		s.publisher.Push(token.CreatedByID, "TOKEN REVOKED", map[string]string{"name": token.Name})
	}
	httputil.WriteSuccess(w, map[string]string{"name": token.Name})
}
