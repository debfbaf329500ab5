// Package access implements the row-level access-control algebra.
//
// Applications attach one Policy per access mode (create, read, update,
// delete) to each registered entity. A policy compiles, for a given
// principal, into a SQL query selecting exactly the rows of the entity's
// table that the principal may access in that mode. Every higher-level
// access check — point lookups, listings, and the verified session's bulk
// commit checks — reduces to this primitive.
//
// Policies compose under And/Or. Public is the identity for And and
// absorbing for Or; both are short-circuited at construction time.
package access
