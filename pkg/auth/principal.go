// Package auth resolves the request principal: API tokens from the
// Authorization header, users from the signed browser cookies the OAuth
// login flow writes. It also issues and verifies the short-lived socket
// tokens the websocket server authenticates with.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/baselayer/pkg/access"
	"github.com/platinummonkey/baselayer/pkg/models"
	"github.com/platinummonkey/baselayer/pkg/session"
)

const authorizationScheme = "token"

// Authenticator resolves HTTP requests to principals
type Authenticator struct {
	mgr     *session.Manager
	cookies *CookieCodec
	cache   *models.TokenCache
}

// NewAuthenticator creates an authenticator. Token resolutions are cached
// briefly so each API request does not cost three queries.
func NewAuthenticator(mgr *session.Manager, cookies *CookieCodec) *Authenticator {
	return &Authenticator{
		mgr:     mgr,
		cookies: cookies,
		cache:   models.NewTokenCache(1024, 30*time.Second),
	}
}

// FromRequest resolves the request's principal. API requests carry
// "Authorization: token <opaque>"; browser requests carry the signed
// identity cookies. Exactly one principal resolves per request.
func (a *Authenticator) FromRequest(ctx context.Context, r *http.Request) (access.Principal, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		credential, err := parseAuthorizationHeader(header)
		if err != nil {
			return nil, err
		}
		return a.resolveToken(ctx, credential)
	}
	identity, err := a.cookies.ReadIdentity(r)
	if err != nil {
		return nil, err
	}
	return a.resolveUser(ctx, identity)
}

func parseAuthorizationHeader(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], authorizationScheme) || parts[1] == "" {
		return "", ErrAuthMissing
	}
	return parts[1], nil
}

func (a *Authenticator) resolveToken(ctx context.Context, credential string) (access.Principal, error) {
	if t, ok := a.cache.Get(credential); ok {
		if !t.Creator().Active() {
			return nil, ErrAccountInactive
		}
		return t, nil
	}

	// Resolution runs unverified: the principal cannot be verified
	// against itself before it exists.
	raw, err := a.mgr.BeginUnverified(ctx)
	if err != nil {
		return nil, err
	}
	defer raw.Close()

	store := models.NewStore(raw.Tx())
	t, err := store.ResolveToken(ctx, credential)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrAuthInvalid
	}
	if err != nil {
		return nil, err
	}
	if err := raw.Commit(); err != nil {
		return nil, err
	}

	if !t.Creator().Active() {
		return nil, ErrAccountInactive
	}
	a.cache.Put(t)
	return t, nil
}

func (a *Authenticator) resolveUser(ctx context.Context, identity Identity) (access.Principal, error) {
	raw, err := a.mgr.BeginUnverified(ctx)
	if err != nil {
		return nil, err
	}
	defer raw.Close()

	store := models.NewStore(raw.Tx())
	u, err := store.GetUserForCookie(ctx, identity.UserID, identity.OAuthUID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrAuthInvalid
	}
	if err != nil {
		return nil, err
	}
	perms, err := store.UserPermissions(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if err := raw.Commit(); err != nil {
		return nil, err
	}

	u.SetPermissions(perms)
	if !u.Active() {
		return nil, ErrAccountInactive
	}
	return u, nil
}

// InvalidateToken drops a revoked credential from the cache
func (a *Authenticator) InvalidateToken(credential string) {
	a.cache.Invalidate(credential)
}
