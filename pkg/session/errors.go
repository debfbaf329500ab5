package session

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/baselayer/pkg/access"
)

// AccessError reports that a principal attempted an operation on a row it
// may not access. Handlers map it to HTTP 401 and the session transaction
// has already been rolled back when it surfaces.
type AccessError struct {
	PrincipalKind  string
	PrincipalIdent string
	Mode           access.Mode
	Entity         string
	PrimaryKey     interface{}
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s %s is not permitted to %s %s %v",
		e.PrincipalKind, e.PrincipalIdent, e.Mode, e.Entity, e.PrimaryKey)
}

// IsAccessError reports whether err wraps an AccessError
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}

// ErrSessionClosed is returned when a session is used after Commit or Rollback
var ErrSessionClosed = errors.New("session is closed")

// ErrLeakDetected is returned from Commit in permissive mode when
// verification found inaccessible rows. The transaction has been rolled
// back; it is deliberately not an AccessError so handlers surface it as a
// 500 rather than a 401.
var ErrLeakDetected = errors.New("access leak detected; transaction rolled back")
