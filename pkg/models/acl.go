package models

import (
	"context"
	"database/sql"
	"time"
)

// ACL is a string-keyed capability, e.g. "Upload Data" or "System admin".
// ACLs are seeded at schema bootstrap and immutable during normal operation.
type ACL struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityName implements session.Record
func (a *ACL) EntityName() string { return "acl" }

// PrimaryKey implements session.Record
func (a *ACL) PrimaryKey() interface{} { return a.ID }

// HasPrimaryKey implements session.Record
func (a *ACL) HasPrimaryKey() bool { return a.ID != "" }

// Insert implements session.Record
func (a *ACL) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO acls (id, description) VALUES ($1, $2) RETURNING created_at, updated_at`,
		a.ID, a.Description,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// Update implements session.Record
func (a *ACL) Update(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`UPDATE acls SET description = $1, updated_at = now() WHERE id = $2 RETURNING updated_at`,
		a.Description, a.ID,
	).Scan(&a.UpdatedAt)
}

// Delete implements session.Record
func (a *ACL) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM acls WHERE id = $1`, a.ID)
	return err
}

// Role is a string-keyed bundle of ACLs assignable to users. Like ACLs,
// roles are seeded at bootstrap.
type Role struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityName implements session.Record
func (r *Role) EntityName() string { return "role" }

// PrimaryKey implements session.Record
func (r *Role) PrimaryKey() interface{} { return r.ID }

// HasPrimaryKey implements session.Record
func (r *Role) HasPrimaryKey() bool { return r.ID != "" }

// Insert implements session.Record
func (r *Role) Insert(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`INSERT INTO roles (id, description) VALUES ($1, $2) RETURNING created_at, updated_at`,
		r.ID, r.Description,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
}

// Update implements session.Record
func (r *Role) Update(ctx context.Context, tx *sql.Tx) error {
	return tx.QueryRowContext(ctx,
		`UPDATE roles SET description = $1, updated_at = now() WHERE id = $2 RETURNING updated_at`,
		r.Description, r.ID,
	).Scan(&r.UpdatedAt)
}

// Delete implements session.Record
func (r *Role) Delete(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, r.ID)
	return err
}
