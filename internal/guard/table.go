package guard

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bizmarket/marketplace/internal/model"
)

// Route binds a path prefix to a policy and its redirect destinations.
type Route struct {
	Prefix            string
	Policy            Policy
	Fallback          string
	ForbiddenFallback string
}

// Table resolves paths to guarded routes by longest matching prefix.
type Table struct {
	routes []Route
}

// NewTable builds a table. Routes with an empty fallback inherit fallback.
func NewTable(fallback, forbiddenFallback string, routes ...Route) *Table {
	rs := make([]Route, len(routes))
	for i, r := range routes {
		if r.Fallback == "" {
			r.Fallback = fallback
		}
		if r.ForbiddenFallback == "" {
			r.ForbiddenFallback = forbiddenFallback
		}
		r.Prefix = "/" + strings.Trim(r.Prefix, "/")
		rs[i] = r
	}
	sort.SliceStable(rs, func(i, j int) bool { return len(rs[i].Prefix) > len(rs[j].Prefix) })
	return &Table{routes: rs}
}

// Match returns the most specific route guarding path. Unguarded paths
// report false.
func (t *Table) Match(path string) (Route, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, r := range t.routes {
		if r.Prefix == "/" || path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns the routes in match order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// DefaultTable guards the role dashboards and account pages of the marketplace.
func DefaultTable(loginPath, forbiddenPath string) *Table {
	return NewTable(loginPath, forbiddenPath,
		Route{Prefix: "/seller", Policy: Require(model.RoleSeller)},
		Route{Prefix: "/buyer", Policy: Require(model.RoleBuyer)},
		Route{Prefix: "/admin", Policy: Require(model.RoleAdmin)},
		Route{Prefix: "/dashboard", Policy: AnyRole()},
		Route{Prefix: "/settings", Policy: AnyRole()},
		Route{Prefix: "/payments", Policy: Allow(model.RoleBuyer, model.RoleSeller)},
	)
}

type tableFile struct {
	Fallback          string      `yaml:"fallback"`
	ForbiddenFallback string      `yaml:"forbidden_fallback"`
	Routes            []routeFile `yaml:"routes"`
}

type routeFile struct {
	Prefix            string   `yaml:"prefix"`
	RequiredRole      string   `yaml:"required_role"`
	AllowedRoles      []string `yaml:"allowed_roles"`
	Fallback          string   `yaml:"fallback"`
	ForbiddenFallback string   `yaml:"forbidden_fallback"`
}

// ParseTable reads a YAML route table. Unknown roles and empty prefixes are
// reported as ErrMisconfiguredGuard.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse guard table: %w", err)
	}
	if f.Fallback == "" {
		return nil, fmt.Errorf("%w: fallback is required", ErrMisconfiguredGuard)
	}
	routes := make([]Route, 0, len(f.Routes))
	for i, rf := range f.Routes {
		if strings.TrimSpace(rf.Prefix) == "" {
			return nil, fmt.Errorf("%w: route %d has no prefix", ErrMisconfiguredGuard, i)
		}
		p, err := rf.policy()
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rf.Prefix, err)
		}
		routes = append(routes, Route{
			Prefix:            rf.Prefix,
			Policy:            p,
			Fallback:          rf.Fallback,
			ForbiddenFallback: rf.ForbiddenFallback,
		})
	}
	forbidden := f.ForbiddenFallback
	if forbidden == "" {
		forbidden = "/"
	}
	return NewTable(f.Fallback, forbidden, routes...), nil
}

func (rf routeFile) policy() (Policy, error) {
	required := model.RoleNone
	if rf.RequiredRole != "" {
		r, err := model.ParseRole(rf.RequiredRole)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %w", ErrMisconfiguredGuard, err)
		}
		required = r
	}
	allowed := make([]model.Role, 0, len(rf.AllowedRoles))
	for _, s := range rf.AllowedRoles {
		r, err := model.ParseRole(s)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %w", ErrMisconfiguredGuard, err)
		}
		allowed = append(allowed, r)
	}
	return NewPolicy(required, allowed...)
}
