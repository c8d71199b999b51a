package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitecraft.dev/cms/internal/authz"
	"sitecraft.dev/cms/internal/config"
	"sitecraft.dev/cms/internal/httpapi"
	"sitecraft.dev/cms/internal/mail"
	"sitecraft.dev/cms/internal/obs"
	"sitecraft.dev/cms/internal/otp"
	"sitecraft.dev/cms/internal/store/pg"
	"sitecraft.dev/cms/internal/token"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		obs.LogError("fatal", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.Init()

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := authz.NewDefaultCatalog()
	if err != nil {
		return err
	}
	engine := authz.NewEngine(catalog)

	tokens, err := token.NewService(
		store.RefreshTokens(), store.Users(),
		cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		token.WithIssuer(cfg.Issuer),
		token.WithAccessTTL(cfg.AccessTokenTTL),
		token.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		return err
	}

	otps, err := otp.NewService(
		store.OTPs(), store.Users(), tokens, mail.LogMailer{},
		otp.WithTTL(cfg.OTPTTL),
	)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Users:  store.Users(),
		Keys:   store.APIKeys(),
		OTP:    otps,
		Tokens: tokens,
		Engine: engine,
		Cookies: &httpapi.SessionCookies{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		ReadyProbe: httpapi.ReadyProbe{DB: store},
		Version:    version,

		RateLimitPerSecond: float64(cfg.RateLimitPerSecond),
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.LogEvent(map[string]any{"msg": "api listening", "addr": cfg.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		obs.LogEvent(map[string]any{"msg": "shutting down", "signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
