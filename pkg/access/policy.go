package access

// Principal is an authenticated actor performing access checks. Users
// authenticate through session cookies; tokens authenticate through the
// Authorization header and act with (a subset of) their creator's reach.
type Principal interface {
	// Kind returns the principal type, e.g. "User" or "Token"
	Kind() string
	// Ident returns a loggable identifier for the principal
	Ident() string
	// EffectiveUserID returns the user id policies match against. For
	// tokens this is the creating user's id.
	EffectiveUserID() int64
	// IsAdmin reports whether the principal bypasses user-match and
	// restricted policies
	IsAdmin() bool
}

// Policy decides which rows of an entity a principal may access in a given
// mode. A policy compiles into a SELECT over the entity's table whose
// result set is exactly the accessible rows.
type Policy interface {
	compile(c *compiler, e *Entity, p Principal, cols []string) (string, error)

	// public reports whether the policy grants unconditional access.
	// Public policies are dropped from conjunctions and absorb disjunctions.
	public() bool
}

type publicPolicy struct{}

func (publicPolicy) public() bool { return true }

// Public grants unconditional access to every row
func Public() Policy { return publicPolicy{} }

type restrictedPolicy struct{}

func (restrictedPolicy) public() bool { return false }

// Restricted denies access to every row except for admins
func Restricted() Policy { return restrictedPolicy{} }

type selfPolicy struct{}

func (selfPolicy) public() bool { return false }

// AccessibleByUser grants access when the row's primary key equals the
// principal's effective user id. Only meaningful on the users table.
// Admins bypass.
func AccessibleByUser() Policy { return selfPolicy{} }

type userMatchesPolicy struct {
	// path is the relationship chain from the entity to a users row
	path []string
}

func (userMatchesPolicy) public() bool { return false }

// AccessibleIfUserMatches grants access when following the named
// relationship chain from the row lands on the principal's user row.
// Admins bypass the match. Policies are built at boot, so an empty chain
// panics rather than compiling a query that matches nothing.
func AccessibleIfUserMatches(relationshipPath ...string) Policy {
	if len(relationshipPath) == 0 {
		panic("access: AccessibleIfUserMatches requires at least one relationship name")
	}
	for _, name := range relationshipPath {
		if name == "" {
			panic("access: AccessibleIfUserMatches relationship names must be non-empty")
		}
	}
	return userMatchesPolicy{path: relationshipPath}
}

// AccessibleByOwner grants access when the row's "owner" relationship
// points at the principal's user row
func AccessibleByOwner() Policy { return AccessibleIfUserMatches("owner") }

// AccessibleByCreatedBy grants access when the row's "created_by"
// relationship points at the principal's user row
func AccessibleByCreatedBy() Policy { return AccessibleIfUserMatches("created_by") }

// RelatedAccess names one relationship whose rows must be accessible in
// the given mode
type RelatedAccess struct {
	Relationship string
	Mode         Mode
}

type relatedRowsPolicy struct {
	clauses []RelatedAccess
}

func (relatedRowsPolicy) public() bool { return false }

// AccessibleIfRelatedRowsAreAccessible grants access when, for every
// clause, the rows reached through the named relationship are themselves
// accessible to the principal in the clause's mode. Clauses whose related
// policy is public contribute no restriction. Used principally on join
// tables.
func AccessibleIfRelatedRowsAreAccessible(clauses ...RelatedAccess) Policy {
	if len(clauses) == 0 {
		panic("access: AccessibleIfRelatedRowsAreAccessible requires at least one clause")
	}
	return relatedRowsPolicy{clauses: clauses}
}

// Combinator joins composed sub-policies
type Combinator int

const (
	// CombineAnd intersects the accessible row sets
	CombineAnd Combinator = iota
	// CombineOr unions the accessible row sets
	CombineOr
)

type composedPolicy struct {
	combinator Combinator
	subs       []Policy
}

func (composedPolicy) public() bool { return false }

// Composed combines sub-policies under a combinator. Public sub-policies
// are skipped during compilation.
func Composed(combinator Combinator, subs ...Policy) Policy {
	return composedPolicy{combinator: combinator, subs: subs}
}

// And intersects policies. Public operands are dropped; an empty result
// collapses to Public.
func And(subs ...Policy) Policy {
	kept := make([]Policy, 0, len(subs))
	for _, s := range subs {
		if s.public() {
			continue
		}
		kept = append(kept, s)
	}
	switch len(kept) {
	case 0:
		return Public()
	case 1:
		return kept[0]
	}
	return composedPolicy{combinator: CombineAnd, subs: kept}
}

// Or unions policies. Any public operand absorbs the whole disjunction.
func Or(subs ...Policy) Policy {
	for _, s := range subs {
		if s.public() {
			return Public()
		}
	}
	switch len(subs) {
	case 0:
		return Restricted()
	case 1:
		return subs[0]
	}
	return composedPolicy{combinator: CombineOr, subs: subs}
}

// CustomFunc builds an arbitrary accessibility query for an entity and
// principal. The returned query must select the entity's rows, exposing at
// least the primary key column id, and number its placeholders from $1.
type CustomFunc func(e *Entity, p Principal) (*Query, error)

type customPolicy struct {
	fn CustomFunc
}

func (customPolicy) public() bool { return false }

// Custom delegates row accessibility to an application-provided query
// builder. Escape hatch for shapes the algebra cannot express.
func Custom(fn CustomFunc) Policy {
	return customPolicy{fn: fn}
}
