package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"sitecraft.dev/cms/internal/apikey"
	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/token"
)

// WithAuth resolves the caller to a principal and stores it on the request
// context. Credentials are tried in a fixed order: Authorization bearer
// token, the access cookie, then X-API-Key. Requests with no usable
// credential get 401.
func (a *API) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := bearerToken(r); raw != "" {
			a.authenticateAccess(w, r, next, raw)
			return
		}
		if raw := accessTokenFromRequest(r); raw != "" {
			a.authenticateAccess(w, r, next, raw)
			return
		}
		if raw := r.Header.Get("X-API-Key"); raw != "" {
			a.authenticateKey(w, r, next, raw)
			return
		}
		writeError(w, http.StatusUnauthorized, "authentication required")
	})
}

func (a *API) authenticateAccess(w http.ResponseWriter, r *http.Request, next http.Handler, raw string) {
	claims, err := a.tokens.VerifyAccess(raw)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			writeError(w, http.StatusUnauthorized, "token expired")
		default:
			writeError(w, http.StatusUnauthorized, "invalid token")
		}
		return
	}
	ctx := authz.ContextWithPrincipal(r.Context(), claims.Principal())
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (a *API) authenticateKey(w http.ResponseWriter, r *http.Request, next http.Handler, raw string) {
	key, err := a.keys.FindByHash(r.Context(), apikey.Hash(raw))
	if err != nil {
		if errors.Is(err, apikey.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ctx := authz.ContextWithPrincipal(r.Context(), authz.KeyPrincipal(key.ID, key.Permissions))
	next.ServeHTTP(w, r.WithContext(ctx))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
