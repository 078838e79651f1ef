package rbac

import (
	"context"
	"strings"
)

// Checker answers permission questions for a role. Grants are either exact
// ("case:view"), a namespace ("session:*") or everything ("*").
type Checker struct {
	exact     map[string]map[string]bool
	prefixes  map[string][]string
	superuser map[string]bool
}

// NewChecker compiles a role→grants table; nil means RolePermissions.
func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	c := &Checker{
		exact:     make(map[string]map[string]bool, len(rp)),
		prefixes:  make(map[string][]string, len(rp)),
		superuser: make(map[string]bool),
	}
	for role, grants := range rp {
		c.exact[role] = make(map[string]bool, len(grants))
		for _, g := range grants {
			switch {
			case g == "*":
				c.superuser[role] = true
			case strings.HasSuffix(g, "*"):
				c.prefixes[role] = append(c.prefixes[role], strings.TrimSuffix(g, "*"))
			default:
				c.exact[role][g] = true
			}
		}
	}
	return c
}

func (c *Checker) Has(role, perm string) bool {
	if c.superuser[role] || c.exact[role][perm] {
		return true
	}
	for _, p := range c.prefixes[role] {
		if strings.HasPrefix(perm, p) {
			return true
		}
	}
	return false
}

// Any reports whether role holds at least one of perms.
func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}
