package access

import (
	"context"
	"database/sql"
	"fmt"
)

// Query is a compiled SQL statement with positional arguments
type Query struct {
	SQL  string
	Args []interface{}
}

// Querier is the subset of database/sql used by access checks. Both
// *sql.DB and *sql.Tx satisfy it; checks run inside the verified session's
// transaction so they observe uncommitted writes.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// AccessibleRows compiles the policy attached to an entity for the given
// mode into a query selecting the rows the principal may access. Passing
// no columns selects all columns.
func AccessibleRows(reg *Registry, e *Entity, p Principal, mode Mode, cols ...string) (*Query, error) {
	pol := e.Policy(mode)
	if pol == nil {
		return nil, fmt.Errorf("entity %q has no %s policy", e.Name(), mode)
	}
	c := newCompiler(reg)
	stmt, err := pol.compile(c, e, p, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s policy for entity %q: %w", mode, e.Name(), err)
	}
	return &Query{SQL: stmt, Args: c.args}, nil
}

// AccessibleIDs compiles a query selecting only the primary keys of the
// rows the principal may access. Used as a subquery by bulk verification.
func AccessibleIDs(reg *Registry, e *Entity, p Principal, mode Mode) (*Query, error) {
	return AccessibleRows(reg, e, p, mode, "id")
}

// IsAccessible reports whether the principal may access a single row,
// identified by primary key, in the given mode.
func IsAccessible(ctx context.Context, q Querier, reg *Registry, e *Entity, p Principal, mode Mode, pk interface{}) (bool, error) {
	inner, err := AccessibleIDs(reg, e, p, mode)
	if err != nil {
		return false, err
	}

	c := &compiler{args: inner.Args}
	stmt := fmt.Sprintf("SELECT COUNT(*) > 0 FROM (%s) AS accessible WHERE accessible.id = %s",
		inner.SQL, c.bind(pk))

	var result interface{}
	if err := q.QueryRowContext(ctx, stmt, c.args...).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to run accessibility check for %s %v (%s): %w",
			e.Name(), pk, mode, err)
	}
	accessible, ok := result.(bool)
	if !ok {
		// Refuse to guess at access decisions when the database answers
		// with something other than a boolean.
		return false, fmt.Errorf("accessibility check for %s %v (%s) returned %v (%T), expected a boolean",
			e.Name(), pk, mode, result, result)
	}
	return accessible, nil
}
