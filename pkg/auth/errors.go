package auth

import "errors"

var (
	// ErrAuthMissing means no credentials were presented. Handlers
	// surface it as 401 with the expected header format.
	ErrAuthMissing = errors.New(`Credentials malformed; expected form "Authorization: token abc123"`)

	// ErrAuthInvalid means credentials were presented but are unknown,
	// unparseable, or expired. Surfaced as 401.
	ErrAuthInvalid = errors.New("credentials invalid")

	// ErrAccountInactive means the credentials resolve to an expired
	// user. Surfaced as 403.
	ErrAccountInactive = errors.New("account is inactive")
)
