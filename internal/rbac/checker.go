// Package rbac implements a small role-based permission check used by
// the HTTP layer. Permissions are flat strings like "course:publish";
// a rule ending in "*" matches by prefix.
package rbac

import "strings"

type Checker struct {
	perms map[string][]string
}

func NewChecker() *Checker {
	return &Checker{perms: RolePermissions}
}

// Has reports whether the role holds the permission.
func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.perms[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

// Any reports whether the role holds at least one of the permissions.
func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

// All reports whether the role holds every one of the permissions.
func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return true
}

func matchPerm(rule, perm string) bool {
	if rule == "*" || rule == perm {
		return true
	}
	if strings.HasSuffix(rule, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(rule, "*"))
	}
	return false
}
