// Package models defines the core entities every baselayer application
// builds on: User, Token, ACL, Role, and the join tables connecting them.
// It also boots the access-control registry with their relationships and
// policies, and provides the store queries principal resolution needs.
package models

// AdminACL is the sentinel capability granting unrestricted access
const AdminACL = "System admin"
