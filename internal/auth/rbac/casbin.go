// Package rbac enforces which roles may reach which HTTP routes. Finer
// checks on department and ownership stay in the services.
package rbac

import (
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicy grants route access per role. Manager inherits employee and
// admin inherits manager.
var DefaultPolicy = [][]string{
	{"employee", "/api/auth/*", "*"},
	{"employee", "/api/messages", "*"},
	{"employee", "/api/messages/*", "*"},
	{"employee", "/api/approvals", "GET"},
	{"employee", "/api/approvals/:id", "GET"},
	{"employee", "/api/users/recipients", "GET"},
	{"employee", "/api/users/meta/departments", "GET"},
	{"manager", "/api/approvals/:id/approve", "POST"},
	{"manager", "/api/approvals/:id/reject", "POST"},
	{"manager", "/api/audit", "GET"},
	{"manager", "/api/audit/stats", "GET"},
	{"admin", "/api/*", "*"},
}

var inheritance = [][]string{
	{"manager", "employee"},
	{"admin", "manager"},
}

type CasbinPolicy struct {
	enforcer *casbin.Enforcer
}

// NewCasbinPolicy builds an enforcer from the embedded model and rules.
// A nil rules slice uses DefaultPolicy.
func NewCasbinPolicy(rules [][]string) (*CasbinPolicy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}
	if rules == nil {
		rules = DefaultPolicy
	}
	if _, err := e.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := e.AddGroupingPolicies(inheritance); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}
	slog.Debug("rbac policy loaded", "rules", len(rules))
	return &CasbinPolicy{enforcer: e}, nil
}

// CanHTTP reports whether role may call method on path.
func (p *CasbinPolicy) CanHTTP(role, path, method string) bool {
	ok, err := p.enforcer.Enforce(role, path, method)
	if err != nil {
		slog.Warn("rbac enforce", "role", role, "path", path, "error", err)
		return false
	}
	return ok
}
