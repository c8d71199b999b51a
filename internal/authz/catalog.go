package authz

import (
	"fmt"
	"sort"
)

// Catalog resolves effective permission sets for roles. The hierarchy is
// static, so resolution happens once at construction; lookups afterwards are
// pure in-memory reads safe for concurrent use.
type Catalog struct {
	hierarchy map[Role][]Role
	effective map[Role]PermissionSet
	reachable map[Role]map[Role]struct{}
}

// NewCatalog validates the hierarchy and precomputes effective permissions.
// It fails when the graph has a cycle or references an undefined role, so a
// broken catalog is caught at startup rather than per request.
func NewCatalog(hierarchy map[Role][]Role, grants map[Role][]Permission) (*Catalog, error) {
	for role, parents := range hierarchy {
		for _, parent := range parents {
			if _, ok := hierarchy[parent]; !ok {
				return nil, fmt.Errorf("authz: role %s inherits from undefined role %s", role, parent)
			}
		}
	}
	for role := range grants {
		if _, ok := hierarchy[role]; !ok {
			return nil, fmt.Errorf("authz: grants reference undefined role %s", role)
		}
	}
	if err := detectCycle(hierarchy); err != nil {
		return nil, err
	}

	c := &Catalog{
		hierarchy: hierarchy,
		effective: make(map[Role]PermissionSet, len(hierarchy)),
		reachable: make(map[Role]map[Role]struct{}, len(hierarchy)),
	}
	for role := range hierarchy {
		c.effective[role] = c.resolve(role, grants)
		c.reachable[role] = c.descend(role)
	}
	return c, nil
}

// NewDefaultCatalog builds the catalog from the built-in role tables.
func NewDefaultCatalog() (*Catalog, error) {
	return NewCatalog(DefaultHierarchy, DefaultGrants)
}

func (c *Catalog) resolve(role Role, grants map[Role][]Permission) PermissionSet {
	if set, ok := c.effective[role]; ok {
		return set
	}
	set := NewPermissionSet(grants[role]...)
	for _, parent := range c.hierarchy[role] {
		for p := range c.resolve(parent, grants) {
			set[p] = struct{}{}
		}
	}
	c.effective[role] = set
	return set
}

func (c *Catalog) descend(role Role) map[Role]struct{} {
	if set, ok := c.reachable[role]; ok {
		return set
	}
	set := map[Role]struct{}{role: {}}
	for _, parent := range c.hierarchy[role] {
		for r := range c.descend(parent) {
			set[r] = struct{}{}
		}
	}
	c.reachable[role] = set
	return set
}

// EffectivePermissions returns the role's own grants plus everything
// inherited through the hierarchy, sorted for stable output. An unknown role
// yields an empty set.
func (c *Catalog) EffectivePermissions(role Role) []Permission {
	set := c.effective[role]
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoleSatisfies reports whether holding held covers the required role, i.e.
// required is held itself or somewhere beneath it in the hierarchy.
func (c *Catalog) RoleSatisfies(held, required Role) bool {
	set, ok := c.reachable[held]
	if !ok {
		return false
	}
	_, ok = set[required]
	return ok
}

// Known reports whether the role exists in the hierarchy.
func (c *Catalog) Known(role Role) bool {
	_, ok := c.effective[role]
	return ok
}

func (c *Catalog) effectiveSet(role Role) PermissionSet {
	return c.effective[role]
}

func detectCycle(hierarchy map[Role][]Role) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[Role]int, len(hierarchy))

	var visit func(role Role) error
	visit = func(role Role) error {
		switch color[role] {
		case grey:
			return fmt.Errorf("authz: role hierarchy cycle through %s", role)
		case black:
			return nil
		}
		color[role] = grey
		for _, parent := range hierarchy[role] {
			if err := visit(parent); err != nil {
				return err
			}
		}
		color[role] = black
		return nil
	}

	for role := range hierarchy {
		if err := visit(role); err != nil {
			return err
		}
	}
	return nil
}
