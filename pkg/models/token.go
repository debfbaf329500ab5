package models

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Token is an API principal: an opaque bearer credential created by a
// user. A token acts as its creator, restricted to the ACLs delegated at
// issuance.
type Token struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedByID int64     `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	permissions []string
	creator     *User
}

// NewTokenID generates an opaque 128-bit random credential
func NewTokenID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// SetPermissions attaches the delegated ACL set
func (t *Token) SetPermissions(perms []string) { t.permissions = perms }

// Permissions returns the ACLs delegated to the token
func (t *Token) Permissions() []string { return t.permissions }

// SetCreator attaches the creating user
func (t *Token) SetCreator(u *User) { t.creator = u }

// Creator returns the creating user when loaded
func (t *Token) Creator() *User { return t.creator }

// Kind implements access.Principal
func (t *Token) Kind() string { return "Token" }

// Ident implements access.Principal. The opaque id is a credential, so
// logs carry the token's name instead.
func (t *Token) Ident() string { return t.Name }

// EffectiveUserID implements access.Principal. Tokens act as their creator.
func (t *Token) EffectiveUserID() int64 { return t.CreatedByID }

// IsAdmin implements access.Principal
func (t *Token) IsAdmin() bool {
	for _, p := range t.permissions {
		if p == AdminACL {
			return true
		}
	}
	return false
}

// EntityName implements session.Record
func (t *Token) EntityName() string { return "token" }

// PrimaryKey implements session.Record
func (t *Token) PrimaryKey() interface{} { return t.ID }

// HasPrimaryKey implements session.Record
func (t *Token) HasPrimaryKey() bool { return t.ID != "" }

// Insert implements session.Record. The credential is generated here when
// the caller has not supplied one.
func (t *Token) Insert(ctx context.Context, tx *sql.Tx) error {
	if t.ID == "" {
		t.ID = NewTokenID()
	}
	return tx.QueryRowContext(ctx,
		`INSERT INTO tokens (id, name, created_by_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.CreatedByID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// Update implements session.Record
func (t *Token) Update(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`UPDATE tokens SET name = $1, updated_at = now() WHERE id = $2 RETURNING updated_at`,
		t.Name, t.ID,
	).Scan(&t.UpdatedAt)
}

// Delete implements session.Record. Deleting a token revokes it; the
// token_acls rows cascade.
func (t *Token) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, t.ID)
	return err
}
