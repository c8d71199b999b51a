package authz

// Engine is the single authorization decision point. It is a pure function
// over the catalog and the principal: no store access, no side effects;
// callers log and report outcomes.
type Engine struct {
	catalog *Catalog
}

// NewEngine wraps a catalog into a decision engine.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the permission catalog the engine decides against.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Allow reports whether the principal may proceed. Every required permission
// must be present in the principal's effective set (role grants, inherited
// grants, explicit overrides, or an API key's fixed set), honoring wildcard
// semantics. When allowedRoles is non-empty it is an independent gate layered
// on top of the permission gate; both must pass. Absence of any matching
// grant is a deny.
func (e *Engine) Allow(p Principal, required []Permission, allowedRoles []Role) bool {
	roleSet := e.catalog.effectiveSet(p.Role)
	extra := p.grantSet()

	for _, req := range required {
		if roleSet.Satisfies(req) || extra.Satisfies(req) {
			continue
		}
		return false
	}

	if len(allowedRoles) > 0 {
		if p.Kind != PrincipalUser {
			return false
		}
		matched := false
		for _, r := range allowedRoles {
			if e.catalog.RoleSatisfies(p.Role, r) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
