package httpapi

import (
	"net/http"

	"sitecraft.dev/cms/internal/audit"
	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/obs"
)

// RequirePermissions allows the request through only when the principal
// satisfies every listed permission. Must run after WithAuth.
func (a *API) RequirePermissions(next http.Handler, perms ...authz.Permission) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := authz.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !a.engine.Allow(p, perms, nil) {
			obs.ObserveAuthzDecision("deny")
			audit.LogEvent(r.Context(), "authz.deny", map[string]any{
				"path": r.URL.Path,
			})
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		obs.ObserveAuthzDecision("allow")
		next.ServeHTTP(w, r)
	})
}

// RequireRoles allows the request through only when the principal is a user
// whose role satisfies at least one listed role. Must run after WithAuth.
func (a *API) RequireRoles(next http.Handler, roles ...authz.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := authz.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !a.engine.Allow(p, nil, roles) {
			obs.ObserveAuthzDecision("deny")
			audit.LogEvent(r.Context(), "authz.deny", map[string]any{
				"path": r.URL.Path,
			})
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		obs.ObserveAuthzDecision("allow")
		next.ServeHTTP(w, r)
	})
}
