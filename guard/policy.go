package guard

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/users"
)

// Route is one entry of the access policy. Public routes ignore Allowed.
// Pattern segments starting with ':' match any single non-empty segment.
type Route struct {
	Pattern string
	Public  bool
	Allowed RoleSet
}

// Policy is the static route table, consulted per navigation.
type Policy struct {
	routes []Route
}

func NewPolicy(routes ...Route) *Policy {
	return &Policy{routes: append([]Route(nil), routes...)}
}

// DefaultPolicy is the application's route surface.
func DefaultPolicy() *Policy {
	all := Roles(users.RoleEmployee, users.RoleManager, users.RoleAdmin)
	managers := Roles(users.RoleManager, users.RoleAdmin)
	employees := Roles(users.RoleEmployee)

	return NewPolicy(
		Route{Pattern: "/", Public: true},
		Route{Pattern: "/signup", Public: true},
		Route{Pattern: PathAdminLogin, Public: true},
		Route{Pattern: PathUnauthorized, Public: true},
		Route{Pattern: PathDashboard, Allowed: employees},
		Route{Pattern: PathHRDashboard, Allowed: managers},
		Route{Pattern: "/projects", Allowed: managers},
		Route{Pattern: "/projects/:id", Allowed: managers},
		Route{Pattern: "/myprojects", Allowed: employees},
		Route{Pattern: "/myprojects/:id", Allowed: employees},
		Route{Pattern: "/tasklist", Allowed: all},
		Route{Pattern: "/task/:id", Allowed: all},
		Route{Pattern: "/admindashboard", Allowed: Roles(users.RoleAdmin)},
	)
}

// Match finds the route for path and its :param values.
func (p *Policy) Match(path string) (Route, map[string]string, bool) {
	segs := split(path)
	for _, r := range p.routes {
		if params, ok := match(split(r.Pattern), segs); ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

// Navigate decides the outcome of visiting path. Unknown paths return
// apierror.ErrUnknownRoute.
func (p *Policy) Navigate(principal Principal, path string) (Decision, error) {
	r, _, ok := p.Match(path)
	if !ok {
		return Decision{}, errors.Wrapf(apierror.ErrUnknownRoute, "[Policy.Navigate] %s", path)
	}
	if r.Public {
		return Render, nil
	}
	return Decide(principal, r.Allowed), nil
}

// Routes returns the table in declaration order.
func (p *Policy) Routes() []Route {
	return append([]Route(nil), p.routes...)
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func match(pattern, segs []string) (map[string]string, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	var params map[string]string
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[p[1:]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}
