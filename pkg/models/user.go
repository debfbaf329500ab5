package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gosimple/slug"
)

// User is a human principal. Users authenticate through signed browser
// cookies and are never hard-deleted; expiry is expressed through
// ExpirationDate.
type User struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	OAuthUID       string          `json:"oauth_uid,omitempty"`
	Preferences    json.RawMessage `json:"preferences,omitempty"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// permissions is the resolved ACL set, populated at principal resolution
	permissions []string
}

// Active reports whether the user may authenticate. A user with no
// expiration date never expires.
func (u *User) Active() bool {
	return u.ExpirationDate == nil || u.ExpirationDate.After(time.Now().UTC())
}

// SetPermissions attaches the resolved ACL set
func (u *User) SetPermissions(perms []string) { u.permissions = perms }

// Permissions returns the resolved ACL set: direct grants unioned with
// ACLs contributed by the user's roles
func (u *User) Permissions() []string { return u.permissions }

// Kind implements access.Principal
func (u *User) Kind() string { return "User" }

// Ident implements access.Principal
func (u *User) Ident() string { return u.Username }

// EffectiveUserID implements access.Principal
func (u *User) EffectiveUserID() int64 { return u.ID }

// IsAdmin implements access.Principal
func (u *User) IsAdmin() bool {
	for _, p := range u.permissions {
		if p == AdminACL {
			return true
		}
	}
	return false
}

// EntityName implements session.Record
func (u *User) EntityName() string { return "user" }

// PrimaryKey implements session.Record
func (u *User) PrimaryKey() interface{} { return u.ID }

// HasPrimaryKey implements session.Record
func (u *User) HasPrimaryKey() bool { return u.ID != 0 }

// Insert implements session.Record. The username is slugified before
// insertion; the database assigns id and timestamps.
func (u *User) Insert(ctx context.Context, tx *sql.Tx) error {
	u.Username = slug.Make(u.Username)
	prefs := u.Preferences
	if len(prefs) == 0 {
		prefs = json.RawMessage(`{}`)
	}
	return tx.QueryRowContext(ctx,
		`INSERT INTO users (username, first_name, last_name, email, phone, oauth_uid, preferences, expiration_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		u.Username, u.FirstName, u.LastName, u.Email, u.Phone, u.OAuthUID, prefs, u.ExpirationDate,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// Update implements session.Record
func (u *User) Update(ctx context.Context, tx *sql.Tx) error {
	u.Username = slug.Make(u.Username)
	return tx.QueryRowContext(ctx,
		`UPDATE users
		 SET username = $1, first_name = $2, last_name = $3, email = $4, phone = $5,
		     oauth_uid = $6, preferences = $7, expiration_date = $8, updated_at = now()
		 WHERE id = $9
		 RETURNING updated_at`,
		u.Username, u.FirstName, u.LastName, u.Email, u.Phone, u.OAuthUID,
		u.Preferences, u.ExpirationDate, u.ID,
	).Scan(&u.UpdatedAt)
}

// Delete implements session.Record. Users are expired, never removed.
func (u *User) Delete(ctx context.Context, tx *sql.Tx) error {
	return fmt.Errorf("users are never deleted; set an expiration date instead")
}
