package auth

import (
	"net/http"
	"strconv"

	"github.com/gorilla/securecookie"
)

// Cookie names written by the external OAuth login flow after a
// successful social login
const (
	UserIDCookie   = "user_id"
	OAuthUIDCookie = "user_oauth_uid"
)

// CookieCodec signs and verifies the browser identity cookies. The OAuth
// glue writes them; the core only validates them.
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

// NewCookieCodec creates a codec over the process-wide secret
func NewCookieCodec(secret []byte) *CookieCodec {
	return &CookieCodec{sc: securecookie.New(secret, nil)}
}

// Identity is the pair of claims carried by the browser cookies. Both must
// match a stored user record for the principal to resolve.
type Identity struct {
	UserID   int64
	OAuthUID string
}

// ReadIdentity extracts and verifies the identity cookies from a request
func (c *CookieCodec) ReadIdentity(r *http.Request) (Identity, error) {
	idCookie, err := r.Cookie(UserIDCookie)
	if err != nil {
		return Identity{}, ErrAuthMissing
	}
	oauthCookie, err := r.Cookie(OAuthUIDCookie)
	if err != nil {
		return Identity{}, ErrAuthMissing
	}

	var userIDStr, oauthUID string
	if err := c.sc.Decode(UserIDCookie, idCookie.Value, &userIDStr); err != nil {
		return Identity{}, ErrAuthInvalid
	}
	if err := c.sc.Decode(OAuthUIDCookie, oauthCookie.Value, &oauthUID); err != nil {
		return Identity{}, ErrAuthInvalid
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return Identity{}, ErrAuthInvalid
	}
	return Identity{UserID: userID, OAuthUID: oauthUID}, nil
}

// WriteIdentity sets the signed identity cookies, as the login flow does
// after OAuth completes
func (c *CookieCodec) WriteIdentity(w http.ResponseWriter, identity Identity) error {
	idValue, err := c.sc.Encode(UserIDCookie, strconv.FormatInt(identity.UserID, 10))
	if err != nil {
		return err
	}
	oauthValue, err := c.sc.Encode(OAuthUIDCookie, identity.OAuthUID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{Name: UserIDCookie, Value: idValue, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: OAuthUIDCookie, Value: oauthValue, Path: "/", HttpOnly: true})
	return nil
}
