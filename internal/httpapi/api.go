// Package httpapi exposes the authorization and session endpoints and the
// guard middleware consumed by the resource modules.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"sitecraft.dev/cms/internal/apikey"
	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/obs"
	"sitecraft.dev/cms/internal/otp"
	"sitecraft.dev/cms/internal/token"
	"sitecraft.dev/cms/internal/user"
)

// Pinger is the readiness dependency, usually the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks backing-service readiness.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Deps carries the collaborators the API layer wires together.
type Deps struct {
	Users      user.Store
	Keys       apikey.Store
	OTP        *otp.Service
	Tokens     *token.Service
	Engine     *authz.Engine
	Cookies    *SessionCookies
	ReadyProbe ReadyProbe
	Version    string

	// Now overrides the time source (useful for tests).
	Now func() time.Time

	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	users      user.Store
	keys       apikey.Store
	otp        *otp.Service
	tokens     *token.Service
	engine     *authz.Engine
	cookies    *SessionCookies
	readyProbe ReadyProbe
	version    string
	now        func() time.Time

	ratePerSecond float64
	rateBurst     int
	maxBodyBytes  int64
}

// New constructs the API and registers its routes. Guards are composed
// explicitly per route: authentication first, then role and permission
// gates, each a discrete predicate.
func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		users:      deps.Users,
		keys:       deps.Keys,
		otp:        deps.OTP,
		tokens:     deps.Tokens,
		engine:     deps.Engine,
		cookies:    deps.Cookies,
		readyProbe: deps.ReadyProbe,
		version:    deps.Version,
		now:        deps.Now,

		ratePerSecond: deps.RateLimitPerSecond,
		rateBurst:     deps.RateLimitBurst,
		maxBodyBytes:  deps.MaxBodyBytes,
	}
	if a.cookies == nil {
		a.cookies = &SessionCookies{Secure: true}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/otp/verify", a.handleOTPVerify)
	a.mux.HandleFunc("/v1/auth/otp/resend", a.handleOTPResend)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.Handle("/v1/auth/logout-all", a.WithAuth(http.HandlerFunc(a.handleLogoutAll)))

	a.mux.Handle("/v1/me", a.WithAuth(
		a.RequirePermissions(http.HandlerFunc(a.handleMe), authz.PermProfileRead),
	))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.ratePerSecond, a.rateBurst)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}
