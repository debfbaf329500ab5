package models

import (
	"context"
	"database/sql"
)

// Join rows connect the access-control entities. Each carries a numeric
// surrogate key; the table holds forward and reverse composite indexes so
// policy joins work from either direction.

// RoleACL grants an ACL to a role
type RoleACL struct {
	ID     int64  `json:"id"`
	RoleID string `json:"role_id"`
	ACLID  string `json:"acl_id"`
}

// EntityName implements session.Record
func (r *RoleACL) EntityName() string { return "role_acl" }

// PrimaryKey implements session.Record
func (r *RoleACL) PrimaryKey() interface{} { return r.ID }

// HasPrimaryKey implements session.Record
func (r *RoleACL) HasPrimaryKey() bool { return r.ID != 0 }

// Insert implements session.Record
func (r *RoleACL) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO role_acls (role_id, acl_id) VALUES ($1, $2) RETURNING id`,
		r.RoleID, r.ACLID,
	).Scan(&r.ID)
}

// Update implements session.Record
func (r *RoleACL) Update(ctx context.Context, tx *sql.Tx) error {
	return errJoinRowImmutable("role_acls")
}

// Delete implements session.Record
func (r *RoleACL) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM role_acls WHERE id = $1`, r.ID)
	return err
}

// UserRole assigns a role to a user
type UserRole struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	RoleID string `json:"role_id"`
}

// EntityName implements session.Record
func (u *UserRole) EntityName() string { return "user_role" }

// PrimaryKey implements session.Record
func (u *UserRole) PrimaryKey() interface{} { return u.ID }

// HasPrimaryKey implements session.Record
func (u *UserRole) HasPrimaryKey() bool { return u.ID != 0 }

// Insert implements session.Record
func (u *UserRole) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) RETURNING id`,
		u.UserID, u.RoleID,
	).Scan(&u.ID)
}

// Update implements session.Record
func (u *UserRole) Update(ctx context.Context, tx *sql.Tx) error {
	return errJoinRowImmutable("user_roles")
}

// Delete implements session.Record
func (u *UserRole) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE id = $1`, u.ID)
	return err
}

// UserACL grants an ACL directly to a user
type UserACL struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	ACLID  string `json:"acl_id"`
}

// EntityName implements session.Record
func (u *UserACL) EntityName() string { return "user_acl" }

// PrimaryKey implements session.Record
func (u *UserACL) PrimaryKey() interface{} { return u.ID }

// HasPrimaryKey implements session.Record
func (u *UserACL) HasPrimaryKey() bool { return u.ID != 0 }

// Insert implements session.Record
func (u *UserACL) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO user_acls (user_id, acl_id) VALUES ($1, $2) RETURNING id`,
		u.UserID, u.ACLID,
	).Scan(&u.ID)
}

// Update implements session.Record
func (u *UserACL) Update(ctx context.Context, tx *sql.Tx) error {
	return errJoinRowImmutable("user_acls")
}

// Delete implements session.Record
func (u *UserACL) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM user_acls WHERE id = $1`, u.ID)
	return err
}

// TokenACL delegates an ACL to a token. Delegated ACLs must be a subset of
// the creator's at issuance; the issuing handler enforces that.
type TokenACL struct {
	ID      int64  `json:"id"`
	TokenID string `json:"token_id"`
	ACLID   string `json:"acl_id"`
}

// EntityName implements session.Record
func (t *TokenACL) EntityName() string { return "token_acl" }

// PrimaryKey implements session.Record
func (t *TokenACL) PrimaryKey() interface{} { return t.ID }

// HasPrimaryKey implements session.Record
func (t *TokenACL) HasPrimaryKey() bool { return t.ID != 0 }

// Insert implements session.Record
func (t *TokenACL) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO token_acls (token_id, acl_id) VALUES ($1, $2) RETURNING id`,
		t.TokenID, t.ACLID,
	).Scan(&t.ID)
}

// Update implements session.Record
func (t *TokenACL) Update(ctx context.Context, tx *sql.Tx) error {
	return errJoinRowImmutable("token_acls")
}

// Delete implements session.Record
func (t *TokenACL) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM token_acls WHERE id = $1`, t.ID)
	return err
}

func errJoinRowImmutable(table string) error {
	return &ImmutableRowError{Table: table}
}

// ImmutableRowError reports an update attempt on a join row; join rows are
// inserted and deleted, never updated in place.
type ImmutableRowError struct {
	Table string
}

func (e *ImmutableRowError) Error() string {
	return e.Table + " rows are immutable; delete and re-insert instead"
}
