package httpapi

import (
	"errors"
	"net/http"
	"time"

	"sitecraft.dev/cms/internal/audit"
	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/obs"
	"sitecraft.dev/cms/internal/otp"
	"sitecraft.dev/cms/internal/token"
	"sitecraft.dev/cms/internal/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpVerifyRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"otp_code"`
}

type otpResendRequest struct {
	UserID string `json:"user_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func sessionFromPair(pair token.Pair) sessionResponse {
	return sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := a.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			obs.ObserveLogin("invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := user.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		obs.ObserveLogin("invalid_credentials")
		audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !u.Active {
		obs.ObserveLogin("disabled")
		writeError(w, http.StatusForbidden, "account disabled")
		return
	}
	if !u.Verified {
		obs.ObserveLogin("unverified")
		writeError(w, http.StatusForbidden, "account not verified")
		return
	}

	pair, err := a.tokens.Issue(r.Context(), u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	obs.ObserveLogin("success")
	audit.LogEvent(r.Context(), "auth.login", map[string]any{"subject": u.ID})
	a.cookies.Set(w, pair, a.now())
	writeJSON(w, http.StatusOK, sessionFromPair(pair))
}

func (a *API) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req otpVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "user_id and otp_code are required")
		return
	}

	pair, err := a.otp.Verify(r.Context(), req.UserID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			obs.ObserveOTPVerification("unknown_user")
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, otp.ErrNotFound):
			obs.ObserveOTPVerification("not_found")
			writeError(w, http.StatusNotFound, "no active verification code")
		case errors.Is(err, otp.ErrExpired):
			obs.ObserveOTPVerification("expired")
			writeError(w, http.StatusBadRequest, "verification code expired")
		case errors.Is(err, otp.ErrInvalid):
			obs.ObserveOTPVerification("invalid")
			writeError(w, http.StatusBadRequest, "invalid verification code")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	obs.ObserveOTPVerification("success")
	audit.LogEvent(r.Context(), "auth.otp.verified", map[string]any{"subject": req.UserID})
	a.cookies.Set(w, pair, a.now())
	writeJSON(w, http.StatusOK, sessionFromPair(pair))
}

func (a *API) handleOTPResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req otpResendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if _, err := a.otp.Issue(r.Context(), req.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	audit.LogEvent(r.Context(), "auth.otp.resent", map[string]any{"subject": req.UserID})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	presented := refreshTokenFromRequest(r)
	if presented == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		writeError(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	pair, err := a.tokens.Refresh(r.Context(), presented)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrReplayDetected):
			obs.ObserveRefresh("replay")
			fields := map[string]any{}
			var replay *token.ReplayError
			if errors.As(err, &replay) {
				fields["subject"] = replay.UserID
				fields["lineage_id"] = replay.LineageID
			}
			audit.LogEvent(r.Context(), "auth.refresh.replay", fields)
			a.cookies.Clear(w)
			writeError(w, http.StatusUnauthorized, "session revoked")
		case errors.Is(err, token.ErrExpired):
			obs.ObserveRefresh("expired")
			writeError(w, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, token.ErrInvalid), errors.Is(err, user.ErrNotFound):
			obs.ObserveRefresh("invalid")
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	obs.ObserveRefresh("success")
	a.cookies.Set(w, pair, a.now())
	writeJSON(w, http.StatusOK, sessionFromPair(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if presented := refreshTokenFromRequest(r); presented != "" {
		// Best effort: a malformed or unknown token still clears the
		// session cookies.
		if err := a.tokens.RevokePresented(r.Context(), presented); err != nil {
			obs.LogError("revoke on logout", map[string]any{"error": err.Error()})
		}
	}
	audit.LogEvent(r.Context(), "auth.logout", nil)
	a.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := authz.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "user session required")
		return
	}
	if err := a.tokens.RevokeAllForUser(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	audit.LogEvent(r.Context(), "auth.logout_all", map[string]any{"subject": userID})
	a.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out everywhere"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, _ := authz.PrincipalFromContext(r.Context())
	if p.Kind == authz.PrincipalAPIKey {
		writeJSON(w, http.StatusOK, map[string]any{
			"kind":        "api_key",
			"key_id":      p.KeyID,
			"permissions": p.KeyPermissions,
		})
		return
	}

	u, err := a.users.Find(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":        "user",
		"id":          u.ID,
		"email":       u.Email,
		"role":        u.Role,
		"overrides":   u.Overrides,
		"verified":    u.Verified,
		"active":      u.Active,
		"permissions": a.engine.Catalog().EffectivePermissions(u.Role),
	})
}
