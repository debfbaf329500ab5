package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/baselayer/pkg/access"
)

// ErrNotFound is returned when a primary-key lookup misses
var ErrNotFound = errors.New("not found")

// Store runs the model queries principal resolution and the core handlers
// need. It is bound to a Querier so the same code runs against the pool or
// inside a session's transaction.
type Store struct {
	q access.Querier
}

// NewStore creates a store over a Querier (*sql.DB or *sql.Tx)
func NewStore(q access.Querier) *Store {
	return &Store{q: q}
}

const userColumns = `id, username, first_name, last_name, email, phone, oauth_uid, preferences, expiration_date, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.Phone,
		&u.OAuthUID, &u.Preferences, &u.ExpirationDate, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetUserByID loads a user by primary key
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserForCookie loads a user by id and verifies the OAuth-derived
// social identity stored in the browser cookie matches the stored record
func (s *Store) GetUserForCookie(ctx context.Context, id int64, oauthUID string) (*User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND oauth_uid = $2`, id, oauthUID))
}

// GetToken loads a token by its opaque credential
func (s *Store) GetToken(ctx context.Context, id string) (*Token, error) {
	var t Token
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, created_by_id, created_at, updated_at FROM tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedByID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	return &t, nil
}

// GetTokenByName loads a token by its per-creator-unique name
func (s *Store) GetTokenByName(ctx context.Context, creatorID int64, name string) (*Token, error) {
	var t Token
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, created_by_id, created_at, updated_at
		 FROM tokens WHERE created_by_id = $1 AND name = $2`, creatorID, name,
	).Scan(&t.ID, &t.Name, &t.CreatedByID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	return &t, nil
}

func collectStrings(rows *sql.Rows, err error, what string) ([]string, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return out, nil
}

// UserPermissions resolves a user's ACL set: direct grants unioned with
// ACLs contributed through roles
func (s *Store) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT acl_id FROM user_acls WHERE user_id = $1
		 UNION
		 SELECT ra.acl_id FROM role_acls ra
		 JOIN user_roles ur ON ur.role_id = ra.role_id
		 WHERE ur.user_id = $1
		 ORDER BY 1`, userID)
	return collectStrings(rows, err, "user permissions")
}

// TokenPermissions resolves the ACLs delegated to a token
func (s *Store) TokenPermissions(ctx context.Context, tokenID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT acl_id FROM token_acls WHERE token_id = $1 ORDER BY 1`, tokenID)
	return collectStrings(rows, err, "token permissions")
}

// UserRoleIDs lists the role ids assigned to a user
func (s *Store) UserRoleIDs(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY 1`, userID)
	return collectStrings(rows, err, "user roles")
}

// UserACLIDs lists the ACL ids granted directly to a user
func (s *Store) UserACLIDs(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT acl_id FROM user_acls WHERE user_id = $1 ORDER BY 1`, userID)
	return collectStrings(rows, err, "user acls")
}

// RoleACLIDs lists the ACL ids bundled in a role
func (s *Store) RoleACLIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT acl_id FROM role_acls WHERE role_id = $1 ORDER BY 1`, roleID)
	return collectStrings(rows, err, "role acls")
}

// TokenACLRows loads the join rows delegating ACLs to a token, for staging
// deletions when a token is revoked
func (s *Store) TokenACLRows(ctx context.Context, tokenID string) ([]*TokenACL, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, token_id, acl_id FROM token_acls WHERE token_id = $1 ORDER BY id`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query token acls: %w", err)
	}
	defer rows.Close()
	var out []*TokenACL
	for rows.Next() {
		var ta TokenACL
		if err := rows.Scan(&ta.ID, &ta.TokenID, &ta.ACLID); err != nil {
			return nil, fmt.Errorf("failed to scan token acl: %w", err)
		}
		out = append(out, &ta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token acls: %w", err)
	}
	return out, nil
}

// ResolveUser loads a user with permissions attached
func (s *Store) ResolveUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.UserPermissions(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.SetPermissions(perms)
	return u, nil
}

// ResolveToken loads a token with its permissions and creator attached
func (s *Store) ResolveToken(ctx context.Context, id string) (*Token, error) {
	t, err := s.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.TokenPermissions(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.SetPermissions(perms)

	creator, err := s.ResolveUser(ctx, t.CreatedByID)
	if err != nil {
		return nil, fmt.Errorf("failed to load token creator: %w", err)
	}
	t.SetCreator(creator)
	return t, nil
}

// ListAccessibleTokens lists the tokens the principal may read
func (s *Store) ListAccessibleTokens(ctx context.Context, reg *access.Registry, p access.Principal) ([]*Token, error) {
	e, ok := reg.Entity("token")
	if !ok {
		return nil, fmt.Errorf("token entity is not registered")
	}
	q, err := access.AccessibleRows(reg, e, p, access.ModeRead,
		"id", "name", "created_by_id", "created_at", "updated_at")
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, q.SQL+" ORDER BY 4", q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()
	var out []*Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedByID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tokens: %w", err)
	}
	return out, nil
}
