// Package guard decides, for a session and a route, whether the route renders
// or the user is redirected.
package guard

import (
	"github.com/jrsteele09/taskboard/users"
)

// Fixed redirect targets.
const (
	PathLogin        = "/"
	PathUnauthorized = "/unauthorized"
	PathAdminLogin   = "/adminlogin"
	PathDashboard    = "/dashboard"
	PathHRDashboard  = "/hrdashboard"
)

// Principal is the read-only view of a session the guard needs.
type Principal interface {
	Authenticated() bool
	UserRole() users.Role
}

// RoleSet is an allowed-role set. The zero value allows nobody.
type RoleSet map[users.Role]struct{}

func Roles(roles ...users.Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Contains(r users.Role) bool {
	_, ok := s[r]
	return ok
}

// Decision is either Render (Redirect == "") or a redirect.
type Decision struct {
	Redirect string
}

var Render = Decision{}

func RedirectTo(path string) Decision {
	return Decision{Redirect: path}
}

func (d Decision) Renders() bool {
	return d.Redirect == ""
}

func (d Decision) String() string {
	if d.Renders() {
		return "render"
	}
	return "redirect " + d.Redirect
}

// Decide is total and side-effect free. It must be called again whenever the
// session may have changed; nothing is cached.
func Decide(p Principal, allowed RoleSet) Decision {
	if p == nil || !p.Authenticated() {
		return RedirectTo(PathLogin)
	}
	if allowed.Contains(p.UserRole()) {
		return Render
	}
	return RedirectTo(PathUnauthorized)
}
