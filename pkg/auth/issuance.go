package auth

import (
	"fmt"
	"sort"
	"strings"
)

// ACLSubsetError reports a token issuance request whose delegated ACLs
// exceed the creator's own permission set
type ACLSubsetError struct {
	Excess []string
}

func (e *ACLSubsetError) Error() string {
	return fmt.Sprintf("requested ACLs exceed the creator's permissions: %s",
		strings.Join(e.Excess, ", "))
}

// ValidateDelegatedACLs enforces the issuance rule: a token's ACLs must be
// a subset of its creator's permissions at the moment of issuance.
func ValidateDelegatedACLs(requested, creatorPerms []string) error {
	held := make(map[string]bool, len(creatorPerms))
	for _, p := range creatorPerms {
		held[p] = true
	}
	var excess []string
	for _, r := range requested {
		if !held[r] {
			excess = append(excess, r)
		}
	}
	if len(excess) > 0 {
		sort.Strings(excess)
		return &ACLSubsetError{Excess: excess}
	}
	return nil
}
