package models

import (
	"github.com/platinummonkey/baselayer/pkg/access"
)

// BuildRegistry registers the core entities, their relationships, and
// their access policies. Applications extend the returned registry with
// their own entities before validating it.
func BuildRegistry() (*access.Registry, error) {
	reg := access.NewRegistry()

	_, err := reg.Register(access.EntitySpec{
		Name:  "user",
		Table: "users",
		// Users are created by administrative flows and expired rather
		// than deleted; they edit only themselves.
		Create: access.Restricted(),
		Read:   access.Public(),
		Update: access.AccessibleByUser(),
		Delete: access.Restricted(),
		Relationships: []access.Relationship{
			{Name: "tokens", Target: "token", Kind: access.HasMany, RemoteColumn: "created_by_id"},
			{Name: "roles", Target: "role", Kind: access.ManyToMany,
				JoinTable: "user_roles", JoinSourceColumn: "user_id", JoinTargetColumn: "role_id"},
			{Name: "acls", Target: "acl", Kind: access.ManyToMany,
				JoinTable: "user_acls", JoinSourceColumn: "user_id", JoinTargetColumn: "acl_id"},
		},
	})
	if err != nil {
		return nil, err
	}

	_, err = reg.Register(access.EntitySpec{
		Name:   "token",
		Table:  "tokens",
		Create: access.AccessibleIfUserMatches("created_by"),
		// A token can read itself so API clients can inspect their own
		// credential without knowing the creator.
		Read:   access.Or(access.AccessibleIfUserMatches("created_by"), tokenSelfPolicy()),
		Update: access.AccessibleIfUserMatches("created_by"),
		Delete: access.AccessibleIfUserMatches("created_by"),
		Relationships: []access.Relationship{
			{Name: "created_by", Target: "user", Kind: access.BelongsTo, LocalColumn: "created_by_id"},
			{Name: "acls", Target: "acl", Kind: access.ManyToMany,
				JoinTable: "token_acls", JoinSourceColumn: "token_id", JoinTargetColumn: "acl_id"},
		},
	})
	if err != nil {
		return nil, err
	}

	// ACLs and roles are seeded at bootstrap and immutable afterwards
	for _, spec := range []access.EntitySpec{
		{Name: "acl", Table: "acls", Read: access.Public(),
			Create: access.Restricted(), Update: access.Restricted(), Delete: access.Restricted()},
		{Name: "role", Table: "roles", Read: access.Public(),
			Create: access.Restricted(), Update: access.Restricted(), Delete: access.Restricted(),
			Relationships: []access.Relationship{
				{Name: "acls", Target: "acl", Kind: access.ManyToMany,
					JoinTable: "role_acls", JoinSourceColumn: "role_id", JoinTargetColumn: "acl_id"},
			}},
		{Name: "role_acl", Table: "role_acls", Read: access.Public(),
			Create: access.Restricted(), Update: access.Restricted(), Delete: access.Restricted(),
			Relationships: []access.Relationship{
				{Name: "role", Target: "role", Kind: access.BelongsTo, LocalColumn: "role_id"},
				{Name: "acl", Target: "acl", Kind: access.BelongsTo, LocalColumn: "acl_id"},
			}},
		{Name: "user_role", Table: "user_roles", Read: access.Public(),
			Create: access.Restricted(), Update: access.Restricted(), Delete: access.Restricted(),
			Relationships: []access.Relationship{
				{Name: "user", Target: "user", Kind: access.BelongsTo, LocalColumn: "user_id"},
				{Name: "role", Target: "role", Kind: access.BelongsTo, LocalColumn: "role_id"},
			}},
		{Name: "user_acl", Table: "user_acls", Read: access.Public(),
			Create: access.Restricted(), Update: access.Restricted(), Delete: access.Restricted(),
			Relationships: []access.Relationship{
				{Name: "user", Target: "user", Kind: access.BelongsTo, LocalColumn: "user_id"},
				{Name: "acl", Target: "acl", Kind: access.BelongsTo, LocalColumn: "acl_id"},
			}},
	} {
		if _, err := reg.Register(spec); err != nil {
			return nil, err
		}
	}

	// Token ACL grants ride on the token's own accessibility: whoever may
	// create or delete the token may manage its grants.
	_, err = reg.Register(access.EntitySpec{
		Name:  "token_acl",
		Table: "token_acls",
		Create: access.AccessibleIfRelatedRowsAreAccessible(
			access.RelatedAccess{Relationship: "token", Mode: access.ModeCreate},
			access.RelatedAccess{Relationship: "acl", Mode: access.ModeRead},
		),
		Read: access.AccessibleIfRelatedRowsAreAccessible(
			access.RelatedAccess{Relationship: "token", Mode: access.ModeRead},
		),
		Update: access.Restricted(),
		Delete: access.AccessibleIfRelatedRowsAreAccessible(
			access.RelatedAccess{Relationship: "token", Mode: access.ModeDelete},
		),
		Relationships: []access.Relationship{
			{Name: "token", Target: "token", Kind: access.BelongsTo, LocalColumn: "token_id"},
			{Name: "acl", Target: "acl", Kind: access.BelongsTo, LocalColumn: "acl_id"},
		},
	})
	if err != nil {
		return nil, err
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// tokenSelfPolicy grants a token principal access to its own row
func tokenSelfPolicy() access.Policy {
	return access.Custom(func(e *access.Entity, p access.Principal) (*access.Query, error) {
		t, ok := p.(*Token)
		if !ok {
			return &access.Query{SQL: "SELECT t.* FROM tokens AS t WHERE FALSE"}, nil
		}
		return &access.Query{
			SQL:  "SELECT t.* FROM tokens AS t WHERE t.id = $1",
			Args: []interface{}{t.ID},
		}, nil
	})
}
