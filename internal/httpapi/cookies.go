package httpapi

import (
	"net/http"
	"time"

	"sitecraft.dev/cms/internal/token"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// SessionCookies writes and clears the HttpOnly session cookie pair. The
// frontend is served from a different origin, so SameSite=None with the
// Secure flag is the default posture.
type SessionCookies struct {
	Domain string
	Secure bool
}

func (c *SessionCookies) sameSite() http.SameSite {
	if c.Secure {
		return http.SameSiteNoneMode
	}
	// Browsers reject SameSite=None without Secure; local development
	// falls back to Lax.
	return http.SameSiteLaxMode
}

// Set writes both session cookies with lifetimes matching the token pair.
func (c *SessionCookies) Set(w http.ResponseWriter, pair token.Pair, now time.Time) {
	http.SetCookie(w, c.build(accessCookieName, pair.AccessToken, pair.AccessExpiresAt, now))
	http.SetCookie(w, c.build(refreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt, now))
}

// Clear expires both session cookies.
func (c *SessionCookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		cookie := c.build(name, "", time.Time{}, time.Time{})
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (c *SessionCookies) build(name, value string, expires, now time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	}
	if !expires.IsZero() {
		cookie.Expires = expires
		if d := expires.Sub(now); d > 0 {
			cookie.MaxAge = int(d / time.Second)
		}
	}
	return cookie
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
