package session

import (
	"context"
	"database/sql"
)

// Record is a row tracked by a verified session. Entity types implement it
// with their own INSERT/UPDATE/DELETE statements; the session decides when
// each runs and verifies access around them.
type Record interface {
	// EntityName returns the registered entity name for access checks
	EntityName() string
	// PrimaryKey returns the row's primary key value
	PrimaryKey() interface{}
	// HasPrimaryKey reports whether the primary key has been assigned.
	// New rows with database-generated keys report false until inserted.
	HasPrimaryKey() bool

	// Insert writes the row and populates a generated primary key
	Insert(ctx context.Context, tx *sql.Tx) error
	// Update writes the row's current state over the stored row
	Update(ctx context.Context, tx *sql.Tx) error
	// Delete removes the stored row
	Delete(ctx context.Context, tx *sql.Tx) error
}
