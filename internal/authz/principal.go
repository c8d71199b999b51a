package authz

// PrincipalKind distinguishes human sessions from machine API keys.
type PrincipalKind string

const (
	PrincipalUser   PrincipalKind = "user"
	PrincipalAPIKey PrincipalKind = "api_key"
)

// Principal is the resolved identity attached to one request. It is built
// per-request by the credential resolver and never persisted.
type Principal struct {
	Kind   PrincipalKind
	UserID string
	Role   Role
	// Overrides are explicit per-user grants layered on top of the role's
	// effective set.
	Overrides []Permission
	// KeyID and KeyPermissions describe a machine caller; API keys carry a
	// fixed permission set and no role.
	KeyID          string
	KeyPermissions []Permission
}

// UserPrincipal builds a principal for a verified human session.
func UserPrincipal(userID string, role Role, overrides []Permission) Principal {
	return Principal{Kind: PrincipalUser, UserID: userID, Role: role, Overrides: overrides}
}

// KeyPrincipal builds a principal for a machine API-key holder.
func KeyPrincipal(keyID string, perms []Permission) Principal {
	return Principal{Kind: PrincipalAPIKey, KeyID: keyID, KeyPermissions: perms}
}

func (p Principal) grantSet() PermissionSet {
	set := make(PermissionSet, len(p.Overrides)+len(p.KeyPermissions))
	for _, perm := range p.Overrides {
		set[perm] = struct{}{}
	}
	for _, perm := range p.KeyPermissions {
		set[perm] = struct{}{}
	}
	return set
}
